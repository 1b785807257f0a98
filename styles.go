package chatango

// Styles holds a user's display styling and the two HTTP-backed blobs the
// spec treats as opaque: profile XML/JSON bytes and the background
// descriptor. Parsing those bodies is out of scope here; callers that
// need structure fetch Profile/Background themselves and parse upstream.
type Styles struct {
	NameColor     string
	FontColor     string
	FontFace      string
	FontSize      int
	UseBackground bool

	// Profile holds the raw bytes of the last profile fetch, if any.
	Profile []byte
	// Background holds the raw bytes of the last background-descriptor
	// fetch, if any.
	Background []byte
}

// DefaultStyles mirrors the Chatango client defaults for an account with
// no saved style record.
func DefaultStyles() Styles {
	return Styles{
		NameColor: "000000",
		FontColor: "000000",
		FontFace:  "0",
		FontSize:  11,
	}
}

// merge copies any non-zero field from other into s, used by
// User.mergeStyles to fold newly observed style fragments without
// clobbering known values.
func (s *Styles) merge(other Styles) {
	if other.NameColor != "" {
		s.NameColor = other.NameColor
	}
	if other.FontColor != "" {
		s.FontColor = other.FontColor
	}
	if other.FontFace != "" {
		s.FontFace = other.FontFace
	}
	if other.FontSize != 0 {
		s.FontSize = other.FontSize
	}
	if other.UseBackground {
		s.UseBackground = true
	}
	if len(other.Profile) > 0 {
		s.Profile = other.Profile
	}
	if len(other.Background) > 0 {
		s.Background = other.Background
	}
}

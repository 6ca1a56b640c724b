package cgpu

// WindowKind identifies the windowing system of a WindowHandle.
type WindowKind uint8

const (
	WindowUnknown WindowKind = iota
	WindowWin32
	WindowCocoa
	WindowXlib
	WindowWayland
	WindowAndroid
)

// WindowHandle identifies a native window to create a surface for. Create,
// when set, lets a windowing library create the surface itself: it receives
// the backend's native instance handle and returns a native surface handle.
type WindowHandle struct {
	Kind    WindowKind
	Display uintptr
	Window  uintptr
	Create  func(instance uintptr) (uintptr, error)
}

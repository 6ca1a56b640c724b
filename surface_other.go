//go:build !windows && !darwin

package cgpu

// SurfaceFromNativeWindow describes an X11 window on display, or an
// Android native window when display is 0.
func SurfaceFromNativeWindow(display, window uintptr) WindowHandle {
	if display == 0 {
		return WindowHandle{Kind: WindowAndroid, Window: window}
	}
	return WindowHandle{Kind: WindowXlib, Display: display, Window: window}
}

// SurfaceFromWayland describes a Wayland surface.
func SurfaceFromWayland(display, surface uintptr) WindowHandle {
	return WindowHandle{Kind: WindowWayland, Display: display, Window: surface}
}

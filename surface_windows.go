//go:build windows

package cgpu

// SurfaceFromHWND describes a Win32 window.
func SurfaceFromHWND(hinstance, hwnd uintptr) WindowHandle {
	return WindowHandle{Kind: WindowWin32, Display: hinstance, Window: hwnd}
}

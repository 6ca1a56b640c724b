//go:build darwin

package cgpu

// SurfaceFromNSView describes a Cocoa view backed by a CAMetalLayer.
func SurfaceFromNSView(view uintptr) WindowHandle {
	return WindowHandle{Kind: WindowCocoa, Window: view}
}

// Package null is a cgpu backend that talks to no GPU. Every native call is
// appended to a Recorder, objects carry sequential handles, submissions
// complete immediately and buffer copies are executed on the host at submit
// time. Errors can be injected per operation, which makes the backend the
// test double for the device layer and for code built on it.
//
// Importing the package registers it under cgpu.BackendNull:
//
//	import _ "github.com/gogpu/cgpu/backend/null"
//
//	inst, err := cgpu.CreateInstance(cgpu.BackendNull)
//
// For custom capabilities construct a Driver with New and register it under
// a name of your own.
package null

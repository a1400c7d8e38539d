// Package wazero loads plugins compiled to WebAssembly and adapts them to
// the runtime's Plugin interface. It handles:
//
//   - Instantiating plugin modules from bundle-resolved artifact paths
//   - Converting between packed i64 pointer+length values and byte slices
//   - Allocating request memory in the guest and reading responses back
//   - Probing optional exports at load time (capability probing): a
//     module that does not export the binary call path simply reports the
//     feature as unsupported
//
// # Basic usage
//
//	rt := wazero.NewRuntime(ctx)
//	defer rt.Close(ctx)
//
//	mod, err := rt.Load(ctx, artifact.Path)
//	if err != nil {
//	    return err
//	}
//	caps := mod.Capabilities()
//	if caps.Raw {
//	    // module speaks the fixed-layout binary protocol too
//	}
package wazero

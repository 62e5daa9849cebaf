package fuzz

import (
	"slices"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/thebagchi/asnfuzz-go/lib/asn"
	"github.com/thebagchi/asnfuzz-go/lib/errors"
)

type harnessKey struct {
	module string
	codec  Codec
}

var (
	modules   = xsync.NewMap[string, *asn.Type]()
	harnesses = xsync.NewMap[harnessKey, *Harness]()
)

// Register makes root available under module. Registering a module twice
// fails.
func Register(module string, root *asn.Type) error {
	if module == "" {
		return errors.Args("empty module name")
	}
	if err := asn.Validate(root); nil != err {
		return err
	}
	if _, loaded := modules.LoadOrStore(module, root); loaded {
		return errors.Args("module %q already registered", module)
	}
	return nil
}

// MustRegister is like Register but panics on error. Intended for init
// functions of schema packages.
func MustRegister(module string, root *asn.Type) {
	if err := Register(module, root); nil != err {
		panic(err)
	}
}

// Lookup returns the shared Harness for module and codec, built with
// DefaultOptions on first use.
func Lookup(module string, codec Codec) (*Harness, error) {
	key := harnessKey{module: module, codec: codec}
	if h, ok := harnesses.Load(key); ok {
		return h, nil
	}
	root, ok := modules.Load(module)
	if !ok {
		return nil, errors.Args("module %q is not registered", module)
	}
	h, err := New(root, codec, DefaultOptions())
	if nil != err {
		return nil, err
	}
	h, _ = harnesses.LoadOrStore(key, h)
	return h, nil
}

// Modules returns the registered module names in order.
func Modules() []string {
	names := make([]string, 0, modules.Size())
	modules.Range(func(name string, _ *asn.Type) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

package template

import "github.com/dop251/goja"

// nodeAccessor exposes nodes[id] / nodes.id as the full recorded output for that node.
// Nested field access (".data.value") is then handled by goja's own recursive wrapping of
// the returned Go map.
type nodeAccessor struct {
	vm     *goja.Runtime
	lookup OutputLookup
}

func newNodeAccessor(vm *goja.Runtime, lookup OutputLookup) *goja.Object {
	return vm.NewDynamicObject(&nodeAccessor{vm: vm, lookup: lookup})
}

func (n *nodeAccessor) Get(key string) goja.Value {
	v, err := n.lookup(key, "")
	if err != nil || v == nil {
		return goja.Undefined()
	}
	return n.vm.ToValue(v)
}

func (n *nodeAccessor) Set(key string, val goja.Value) bool { return false }
func (n *nodeAccessor) Has(key string) bool {
	_, err := n.lookup(key, "")
	return err == nil
}
func (n *nodeAccessor) Delete(key string) bool { return false }
func (n *nodeAccessor) Keys() []string         { return nil }

// globalAccessor exposes globals by name, backing both the "c" and "context" template
// names — aliases for the same global-variable namespace.
type globalAccessor struct {
	vm     *goja.Runtime
	lookup GlobalLookup
}

func newGlobalAccessor(vm *goja.Runtime, lookup GlobalLookup) *goja.Object {
	return vm.NewDynamicObject(&globalAccessor{vm: vm, lookup: lookup})
}

func (g *globalAccessor) Get(key string) goja.Value {
	v, err := g.lookup(key, "")
	if err != nil || v == nil {
		return goja.Undefined()
	}
	return g.vm.ToValue(v)
}

func (g *globalAccessor) Set(key string, val goja.Value) bool { return false }
func (g *globalAccessor) Has(key string) bool {
	_, err := g.lookup(key, "")
	return err == nil
}
func (g *globalAccessor) Delete(key string) bool { return false }
func (g *globalAccessor) Keys() []string         { return nil }

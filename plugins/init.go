// Package plugins registers all built-in plugins.
package plugins

import (
	"firestige.xyz/wsinspect/pkg/plugin"
	"firestige.xyz/wsinspect/plugins/injector/console"
	"firestige.xyz/wsinspect/plugins/injector/kafka"
	"firestige.xyz/wsinspect/plugins/injector/proxy"
)

func init() {
	mustRegister("console", console.New)
	mustRegister("proxy", proxy.New)
	mustRegister("kafka", kafka.New)
}

func mustRegister(name string, factory plugin.InjectorFactory) {
	if err := plugin.RegisterInjector(name, factory); err != nil {
		panic(err)
	}
}

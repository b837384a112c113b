package handlers

import (
	"fmt"

	"git.sr.ht/~rjarry/mlsync/config"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

// FactoryFunc creates the engine of an account. The source URL has already
// been parsed from acct.Source.
type FactoryFunc func(acct *config.AccountConfig) (types.Engine, error)

var engineFactories map[string]FactoryFunc = make(map[string]FactoryFunc)

func RegisterEngineFactory(scheme string, factory FactoryFunc) {
	engineFactories[scheme] = factory
}

func GetEngineForScheme(scheme string, acct *config.AccountConfig) (types.Engine, error) {
	factory, ok := engineFactories[scheme]
	if !ok {
		return nil, fmt.Errorf("Unknown backend %s", scheme)
	}
	return factory(acct)
}

// Schemes lists the registered URL schemes
func Schemes() []string {
	var schemes []string
	for s := range engineFactories {
		schemes = append(schemes, s)
	}
	return schemes
}

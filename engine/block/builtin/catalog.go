// Package builtin provides the block catalog served by the gateway.
package builtin

import (
	"github.com/compozy/blockgate/engine/block"
	"github.com/compozy/blockgate/pkg/config"
)

type Deps struct {
	Config      config.BlocksConfig
	Credentials block.CredentialProvider
	Outbound    *Outbound
}

// Descriptors returns a fresh copy of every built-in descriptor.
func Descriptors() []*block.Descriptor {
	return []*block.Descriptor{
		httpDescriptor(),
		jsonDescriptor(),
		templateDescriptor(),
		gmailDescriptor(),
		slackDescriptor(),
		batchDescriptor(),
		echoDescriptor(),
		scheduleDescriptor(),
	}
}

// Load builds the catalog and the registry holding its actions.
func Load(deps Deps) (*block.Catalog, *block.Registry, error) {
	if deps.Credentials == nil {
		deps.Credentials = block.NoCredentials{}
	}
	if deps.Outbound == nil {
		out, err := NewOutbound(deps.Config)
		if err != nil {
			return nil, nil, err
		}
		deps.Outbound = out
	}
	catalog, err := block.NewCatalog(Descriptors()...)
	if err != nil {
		return nil, nil, err
	}
	registry := block.NewRegistry()
	actions := []block.Action{
		httpAction(deps.Outbound),
		jsonAction(),
		templateAction(),
		slackAction(deps.Outbound, deps.Credentials, deps.Config.SlackBaseURL),
		batchAction(),
		echoAction(),
		scheduleAction(),
	}
	actions = append(actions, gmailActions(deps.Outbound, deps.Credentials, deps.Config.GmailBaseURL)...)
	if err := registry.Register(actions...); err != nil {
		return nil, nil, err
	}
	return catalog, registry, nil
}

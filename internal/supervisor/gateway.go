// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package supervisor

import (
	"errors"
	"log/slog"

	"github.com/thejerf/suture/v4"
)

// ErrMissingService is returned by NewGatewayTree when a layer has no
// service.
var ErrMissingService = errors.New("supervisor: gateway service is nil")

// GatewayServices are the long-running parts of the gateway, one per layer.
type GatewayServices struct {
	// Sessions sweeps expired session engines.
	Sessions suture.Service
	// Hub fans out push messages to websocket clients.
	Hub suture.Service
	// HTTP serves the API.
	HTTP suture.Service
}

// NewGatewayTree builds the tree and places each service in its layer.
func NewGatewayTree(logger *slog.Logger, config TreeConfig, svcs GatewayServices) (*SupervisorTree, error) {
	if svcs.Sessions == nil || svcs.Hub == nil || svcs.HTTP == nil {
		return nil, ErrMissingService
	}
	tree, err := NewSupervisorTree(logger, config)
	if err != nil {
		return nil, err
	}
	tree.Add(LayerData, svcs.Sessions)
	tree.Add(LayerMessaging, svcs.Hub)
	tree.Add(LayerAPI, svcs.HTTP)
	return tree, nil
}

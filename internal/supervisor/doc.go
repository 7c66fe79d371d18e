// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

/*
Package supervisor runs the gateway's long-lived services under a
suture/v4 tree.

# Layers

	ugflix-gateway (root)
	├── data-layer       session registry janitor
	├── messaging-layer  websocket hub
	└── api-layer        HTTP server

Each layer is its own supervisor, so a service that keeps failing backs
off without restarting the others. Supervisor events are logged through
sutureslog.

# Usage

	tree, err := supervisor.NewGatewayTree(logger, supervisor.DefaultTreeConfig(), supervisor.GatewayServices{
	    Sessions: registry,
	    Hub:      hub,
	    HTTP:     supervisor.NewAPIServer(server, ":8080", 10*time.Second),
	})
	if err != nil {
	    return err
	}
	return tree.Serve(ctx)

Per-user loops (payment watches, chat pollers, the subscription widget)
are not supervised here. They belong to a session engine and stop with it.
*/
package supervisor

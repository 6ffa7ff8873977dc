// Copyright 2025 James Ross
package dispatch

import (
	"fmt"

	"github.com/flyingrobots/go-redis-work-queue/internal/operation"
	"github.com/flyingrobots/go-redis-work-queue/internal/provider"
)

// endpointFor returns the HTTP method and path for an operation
// against a given provider kind, per spec §4.4's URL table. recordID
// is required for READ/UPDATE/DELETE and ignored for CREATE.
func endpointFor(kind provider.Kind, opKind operation.Kind, recordID string) (method, path string) {
	switch kind {
	case provider.Salesforce:
		const base = "/services/data/v52.0/sobjects/Contact"
		switch opKind {
		case operation.Create:
			return "POST", base
		case operation.Read:
			return "GET", fmt.Sprintf("%s/%s", base, recordID)
		case operation.Update:
			return "PATCH", fmt.Sprintf("%s/%s", base, recordID)
		case operation.Delete:
			return "DELETE", fmt.Sprintf("%s/%s", base, recordID)
		}
	case provider.HubSpot:
		const base = "/crm/v3/objects/contacts"
		switch opKind {
		case operation.Create:
			return "POST", base
		case operation.Read:
			return "GET", fmt.Sprintf("%s/%s", base, recordID)
		case operation.Update:
			return "PATCH", fmt.Sprintf("%s/%s", base, recordID)
		case operation.Delete:
			return "DELETE", fmt.Sprintf("%s/%s", base, recordID)
		}
	case provider.Pipedrive:
		const base = "/v1/persons"
		switch opKind {
		case operation.Create:
			return "POST", base
		case operation.Read:
			return "GET", fmt.Sprintf("%s/%s", base, recordID)
		case operation.Update:
			return "PUT", fmt.Sprintf("%s/%s", base, recordID)
		case operation.Delete:
			return "DELETE", fmt.Sprintf("%s/%s", base, recordID)
		}
	case provider.Custom:
		const base = "/contacts"
		switch opKind {
		case operation.Create:
			return "POST", base
		case operation.Read:
			return "GET", fmt.Sprintf("%s/%s", base, recordID)
		case operation.Update:
			return "PUT", fmt.Sprintf("%s/%s", base, recordID)
		case operation.Delete:
			return "DELETE", fmt.Sprintf("%s/%s", base, recordID)
		}
	}
	return "POST", "/contacts"
}

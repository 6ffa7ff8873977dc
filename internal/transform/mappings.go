// Copyright 2025 James Ross
package transform

import "github.com/flyingrobots/go-redis-work-queue/internal/provider"

// DefaultMappings returns the shipped internal→external field mapping
// for a provider kind, exactly as listed in spec §6.
func DefaultMappings(kind provider.Kind) []Mapping {
	switch kind {
	case provider.Salesforce:
		return []Mapping{
			{Internal: "first_name", External: "FirstName"},
			{Internal: "last_name", External: "LastName", Required: true},
			{Internal: "email", External: "Email", Transformer: "format_email"},
			{Internal: "phone", External: "Phone", Transformer: "format_phone"},
			{Internal: "company_id", External: "AccountId"},
			{Internal: "title", External: "Title"},
		}
	case provider.HubSpot:
		return []Mapping{
			{Internal: "first_name", External: "firstname"},
			{Internal: "last_name", External: "lastname", Required: true},
			{Internal: "email", External: "email", Transformer: "format_email"},
			{Internal: "phone", External: "phone", Transformer: "format_phone"},
			{Internal: "company_name", External: "company"},
			{Internal: "title", External: "jobtitle"},
		}
	case provider.Pipedrive:
		return []Mapping{
			{Internal: "full_name", External: "name", Required: true},
			{Internal: "email", External: "email", Transformer: "format_email"},
			{Internal: "phone", External: "phone", Transformer: "format_phone"},
			{Internal: "organization_id", External: "org_id", Transformer: "to_int"},
		}
	case provider.Custom:
		return nil
	default:
		return nil
	}
}

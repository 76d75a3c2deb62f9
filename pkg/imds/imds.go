// Package imds contains clients for the OCI Instance Metadata Service (IMDSv2).
package imds

import "context"

// DefaultEndpoint is the link-local IMDSv2 base URL.
const DefaultEndpoint = "http://169.254.169.254/opc/v2"

// Client describes the metadata lookups used to fill in client configuration.
type Client interface {
	// Region returns the region identifier for the running instance.
	Region(ctx context.Context) (string, error)
	// CanonicalRegion returns the canonical region name, for example "us-phoenix-1".
	CanonicalRegion(ctx context.Context) (string, error)
	// InstanceID returns the OCID of the running instance.
	InstanceID(ctx context.Context) (string, error)
	// CompartmentID returns the compartment OCID of the running instance.
	CompartmentID(ctx context.Context) (string, error)
}

// StaticClient answers metadata lookups from fixed values. It stands in for IMDS off-instance.
type StaticClient struct {
	RegionName    string
	CanonicalName string
	Instance      string
	Compartment   string
}

// Region implements Client.
func (s StaticClient) Region(context.Context) (string, error) {
	return s.RegionName, nil
}

// CanonicalRegion implements Client, falling back to RegionName.
func (s StaticClient) CanonicalRegion(context.Context) (string, error) {
	if s.CanonicalName == "" {
		return s.RegionName, nil
	}

	return s.CanonicalName, nil
}

// InstanceID implements Client.
func (s StaticClient) InstanceID(context.Context) (string, error) {
	return s.Instance, nil
}

// CompartmentID implements Client.
func (s StaticClient) CompartmentID(context.Context) (string, error) {
	return s.Compartment, nil
}

package domain

// Delivery identifies a channel the policy is transmitted over.
type Delivery string

const (
	// DeliveryHeader emits the policy as an HTTP response header.
	DeliveryHeader Delivery = "header"
	// DeliveryMeta injects the policy as a <meta> tag into served HTML.
	DeliveryMeta Delivery = "meta"
)

// Runtime carries the environment-derived settings the request path
// needs. It is resolved once at startup and never mutated afterwards;
// handlers receive it by value.
type Runtime struct {
	Environment string
	Host        string
	Port        int
	TLS         bool

	LiveReload     bool
	LiveReloadHost string
	LiveReloadPort int
	LiveReloadTLS  bool
}

// IsTest reports whether the runtime environment may execute tests,
// which requires a script nonce so inline test bootstrap can run.
func (r Runtime) IsTest() bool {
	return r.Environment == "test"
}

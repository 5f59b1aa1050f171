// backend/src/bankapi/registry.go
package bankapi

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/asg67/finmanager/backend/src/config"
)

const (
	BankTBank     = "tbank"
	BankModulbank = "modulbank"
	BankTochka    = "tochka"
)

// ErrUnsupportedBank is returned by Lookup for codes not in the registry.
type ErrUnsupportedBank struct {
	Code string
}

func (e *ErrUnsupportedBank) Error() string {
	return fmt.Sprintf("unsupported bank %q", e.Code)
}

// Registry holds one adapter per supported bank. The set is closed: adding a
// bank means adding an adapter here.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds the default registry with all supported banks sharing
// one HTTP client.
func NewRegistry() *Registry {
	client := &http.Client{Timeout: config.Cfg.BankHTTPTimeout}
	return &Registry{adapters: map[string]Adapter{
		BankTBank:     newTBankAdapter(client, ""),
		BankModulbank: newModulbankAdapter(client, ""),
		BankTochka:    newTochkaAdapter(client, ""),
	}}
}

// NewRegistryWith builds a registry from explicit adapters. Used by tests to
// point adapters at stub servers.
func NewRegistryWith(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Code()] = a
	}
	return &Registry{adapters: m}
}

// Lookup returns the adapter for code or an ErrUnsupportedBank.
func (r *Registry) Lookup(code string) (Adapter, error) {
	a, ok := r.adapters[code]
	if !ok {
		return nil, &ErrUnsupportedBank{Code: code}
	}
	return a, nil
}

// Codes lists the supported bank codes in stable order.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.adapters))
	for c := range r.adapters {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

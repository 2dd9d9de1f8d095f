package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"sigs.k8s.io/external-dns/endpoint"
	"sigs.k8s.io/external-dns/plan"

	"github.com/lachlan2k/external-dns-hostsblock-webhook/hostsfile"
)

// HostsfilesProvider serves external-dns from the managed block of a hosts
// file. Entries outside the block are never read into records or modified.
type HostsfilesProvider struct {
	lock  sync.Mutex
	hosts *hostsfile.Hosts

	ttl          endpoint.TTL
	domainFilter endpoint.DomainFilter
	logger       zerolog.Logger
}

func NewHostsfilesProvider(hosts *hostsfile.Hosts, ttl int64, domains []string, logger zerolog.Logger) *HostsfilesProvider {
	return &HostsfilesProvider{
		hosts:        hosts,
		ttl:          endpoint.TTL(ttl),
		domainFilter: endpoint.NewDomainFilter(domains),
		logger:       logger,
	}
}

func recordTypeFor(kind hostsfile.AddressKind) string {
	if kind == hostsfile.KindV6 {
		return endpoint.RecordTypeAAAA
	}
	return endpoint.RecordTypeA
}

func supportedRecordType(recordType string) bool {
	return recordType == endpoint.RecordTypeA || recordType == endpoint.RecordTypeAAAA
}

// Caller must hold lock
func (h *HostsfilesProvider) load() error {
	return h.hosts.Load()
}

func (h *HostsfilesProvider) Records(ctx context.Context) ([]*endpoint.Endpoint, error) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if err := h.load(); err != nil {
		return nil, err
	}

	records := []*endpoint.Endpoint{}
	for _, e := range h.hosts.Entries() {
		if e.IsComment() || !e.IsManaged() {
			continue
		}
		for _, name := range e.Names {
			records = append(records, &endpoint.Endpoint{
				DNSName:    name,
				Targets:    endpoint.Targets{e.Address},
				RecordType: recordTypeFor(e.Kind),
				RecordTTL:  h.ttl,
				Labels:     endpoint.Labels{},
			})
		}
	}

	return records, nil
}

func kindFor(recordType string) hostsfile.AddressKind {
	if recordType == endpoint.RecordTypeAAAA {
		return hostsfile.KindV6
	}
	return hostsfile.KindV4
}

// firstTarget returns the first target of the endpoint's address family. A
// name has exactly one owner in the block, so later targets are ignored.
func (h *HostsfilesProvider) firstTarget(ep *endpoint.Endpoint) (string, bool) {
	var chosen string
	for _, target := range ep.Targets {
		kind, ok := hostsfile.KindOf(target)
		if !ok || recordTypeFor(kind) != ep.RecordType {
			h.logger.Warn().Str("name", ep.DNSName).Str("target", target).Msg("target does not match record type")
			continue
		}
		if chosen != "" {
			h.logger.Warn().Str("name", ep.DNSName).Str("target", target).Str("kept", chosen).Msg("ignoring extra target")
			continue
		}
		chosen = target
	}
	return chosen, chosen != ""
}

// Caller must hold lock
func (h *HostsfilesProvider) insert(ep *endpoint.Endpoint) {
	if !supportedRecordType(ep.RecordType) {
		h.logger.Info().Str("type", ep.RecordType).Str("name", ep.DNSName).Msg("only A and AAAA records are supported")
		return
	}

	chosen, ok := h.firstTarget(ep)
	if !ok {
		h.logger.Warn().Str("name", ep.DNSName).Msg("endpoint contained no usable targets")
		return
	}

	if err := h.hosts.AddPairKind(chosen, ep.DNSName, kindFor(ep.RecordType)); err != nil {
		h.logger.Error().Err(err).Str("name", ep.DNSName).Msg("cannot add endpoint")
	}
}

// Caller must hold lock
func (h *HostsfilesProvider) remove(ep *endpoint.Endpoint) {
	h.hosts.Remove(ep.DNSName, hostsfile.ManagedOnly)
}

func (h *HostsfilesProvider) ApplyChanges(ctx context.Context, changes *plan.Changes) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if err := h.load(); err != nil {
		return err
	}

	for _, toDelete := range changes.Delete {
		h.logger.Info().Str("endpoint", toDelete.String()).Msg("deleting endpoint")
		h.remove(toDelete)
	}

	// We get UpdateOld of what to remove and UpdateNew of what to add.
	for i, old := range changes.UpdateOld {
		h.logger.Info().Int("index", i).Str("endpoint", old.String()).Msg("removing existing endpoint for update")
		h.remove(old)
	}
	for i, toUpdate := range changes.UpdateNew {
		h.logger.Info().Int("index", i).Str("endpoint", toUpdate.String()).Msg("updating endpoint")
		h.insert(toUpdate)
	}

	for _, toCreate := range changes.Create {
		h.logger.Info().Str("endpoint", toCreate.String()).Msg("creating endpoint")
		h.insert(toCreate)
	}

	return h.hosts.Write()
}

// AdjustEndpoints reshapes the desired endpoints into what the block can
// store, so the next Records call reports them unchanged: one target per
// endpoint and one endpoint per name. When a name has both an A and an AAAA
// endpoint the A is kept; among endpoints of the same type the first wins.
func (h *HostsfilesProvider) AdjustEndpoints(endpoints []*endpoint.Endpoint) ([]*endpoint.Endpoint, error) {
	hasA := map[string]bool{}
	for _, ep := range endpoints {
		if ep.RecordType == endpoint.RecordTypeA {
			if _, ok := h.firstTarget(ep); ok {
				hasA[ep.DNSName] = true
			}
		}
	}

	seen := map[string]bool{}
	adjusted := make([]*endpoint.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if !supportedRecordType(ep.RecordType) {
			continue
		}
		if ep.RecordType == endpoint.RecordTypeAAAA && hasA[ep.DNSName] {
			h.logger.Info().Str("name", ep.DNSName).Msg("dropping AAAA endpoint, the A endpoint owns the name")
			continue
		}
		target, ok := h.firstTarget(ep)
		if !ok || seen[ep.DNSName] {
			continue
		}
		seen[ep.DNSName] = true

		ep.Targets = endpoint.Targets{target}
		ep.RecordTTL = h.ttl
		if ep.Labels == nil {
			ep.Labels = endpoint.Labels{}
		}
		adjusted = append(adjusted, ep)
	}

	return adjusted, nil
}

type domainFilter struct {
	filter endpoint.DomainFilter
}

func (d domainFilter) Match(domain string) bool {
	return d.filter.Match(domain)
}

// MarshalJSON keeps the filter visible to external-dns during negotiation.
func (d domainFilter) MarshalJSON() ([]byte, error) {
	return json.Marshal(&d.filter)
}

func (h *HostsfilesProvider) GetDomainFilter() endpoint.DomainFilterInterface {
	return domainFilter{filter: h.domainFilter}
}

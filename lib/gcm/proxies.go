// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gcm

import (
	"context"
	"sort"
)

// proxyRef names one interface proxy: the interface iface of component
// proxy component, hosted by process.
type proxyRef struct {
	process   string
	component string
	iface     string
	provided  bool
}

type componentProxyRef struct {
	process   string
	component string
}

// proxiesOf returns the proxies a remote connection relies on: the
// provided interface proxy in the client process and the required
// interface proxy in the server process.
func proxiesOf(element ConnectionElement) []proxyRef {
	if !element.IsRemote() {
		return nil
	}
	return []proxyRef{
		{process: element.Client.Process, component: element.Server.ComponentUID(), iface: element.Server.Interface, provided: true},
		{process: element.Server.Process, component: element.Client.ComponentUID(), iface: element.Client.Interface, provided: false},
	}
}

type proxyRemoval struct {
	local Local
	ref   proxyRef
}

// releaseProxies removes the proxies of gone connections that no
// remaining connection uses, then every component proxy left without
// a used interface. Processes that are no longer registered are
// skipped. Failures are logged.
func (m *Manager) releaseProxies(ctx context.Context, gone []ConnectionElement) {
	m.proxyMu.Lock()
	defer m.proxyMu.Unlock()

	m.mu.Lock()
	inUse := make(map[proxyRef]struct{})
	componentInUse := make(map[componentProxyRef]struct{})
	for _, element := range m.connections {
		for _, ref := range proxiesOf(*element) {
			inUse[ref] = struct{}{}
			componentInUse[componentProxyRef{ref.process, ref.component}] = struct{}{}
		}
	}
	var interfaces []proxyRemoval
	components := make(map[componentProxyRef]Local)
	seen := make(map[proxyRef]struct{})
	for _, element := range gone {
		for _, ref := range proxiesOf(element) {
			if _, used := inUse[ref]; used {
				continue
			}
			if _, done := seen[ref]; done {
				continue
			}
			seen[ref] = struct{}{}
			local := m.localOfLocked(ref.process)
			if local == nil {
				continue
			}
			interfaces = append(interfaces, proxyRemoval{local: local, ref: ref})
			component := componentProxyRef{ref.process, ref.component}
			if _, used := componentInUse[component]; !used {
				components[component] = local
			}
		}
	}
	m.mu.Unlock()

	for _, removal := range interfaces {
		ref := removal.ref
		var removed bool
		if ref.provided {
			removed = removal.local.RemoveInterfaceProvidedProxy(ctx, ref.component, ref.iface)
		} else {
			removed = removal.local.RemoveInterfaceRequiredProxy(ctx, ref.component, ref.iface)
		}
		if !removed {
			m.logger.Debug("interface proxy already gone",
				"process", ref.process,
				"component", ref.component,
				"interface", ref.iface,
			)
		}
	}

	ordered := make([]componentProxyRef, 0, len(components))
	for ref := range components {
		ordered = append(ordered, ref)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].process != ordered[j].process {
			return ordered[i].process < ordered[j].process
		}
		return ordered[i].component < ordered[j].component
	})
	for _, ref := range ordered {
		if !components[ref].RemoveComponentProxy(ctx, ref.component) {
			m.logger.Debug("component proxy already gone", "process", ref.process, "component", ref.component)
			continue
		}
		m.logger.Debug("component proxy removed", "process", ref.process, "component", ref.component)
	}
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package linkmonitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"nipart.dev/nipart/internal/event"
)

func newTestMonitor(t *testing.T) (*Monitor, chan event.Event) {
	t.Helper()
	out := make(chan event.Event, 16)
	return New(nil, out), out
}

func TestSubscribeEmitsImmediatelyIfAlreadySatisfied(t *testing.T) {
	m, out := newTestMonitor(t)
	m.NotifyLinkChange("eth0", true)

	m.Subscribe(Rule{UUID: "r1", Iface: "eth0", Kind: KindUp, Requester: event.User()})

	select {
	case evt := <-out:
		assert.Equal(t, "LinkUp", evt.Kind)
	default:
		t.Fatal("expected immediate emission")
	}
}

func TestSubscribeWaitsIfNotYetSatisfied(t *testing.T) {
	m, out := newTestMonitor(t)
	m.NotifyLinkChange("eth0", false)
	m.Subscribe(Rule{UUID: "r1", Iface: "eth0", Kind: KindUp, Requester: event.User()})

	select {
	case <-out:
		t.Fatal("must not emit before the state is satisfied")
	default:
	}

	m.NotifyLinkChange("eth0", true)
	select {
	case evt := <-out:
		assert.Equal(t, "LinkUp", evt.Kind)
	default:
		t.Fatal("expected emission once link came up")
	}
}

func TestDuplicateEmissionSuppressedWithinWindow(t *testing.T) {
	m, out := newTestMonitor(t)
	m.Subscribe(Rule{UUID: "r1", Iface: "eth0", Kind: KindUp, Requester: event.User()})
	m.NotifyLinkChange("eth0", true)
	<-out // initial emission

	m.NotifyLinkChange("eth0", true) // no state change, re-notify same value
	select {
	case <-out:
		t.Fatal("must not re-emit the same kind within the debounce window absent a state change")
	default:
	}
}

func TestEmissionRepeatsAfterStateDiffersEvenWithinWindow(t *testing.T) {
	m, out := newTestMonitor(t)
	m.Subscribe(Rule{UUID: "r1", Iface: "eth0", Kind: KindUp, Requester: event.User()})
	m.NotifyLinkChange("eth0", true)
	<-out

	m.NotifyLinkChange("eth0", false) // flap down
	m.NotifyLinkChange("eth0", true)  // flap back up: state differed in between
	select {
	case evt := <-out:
		assert.Equal(t, "LinkUp", evt.Kind)
	default:
		t.Fatal("expected re-emission after an intervening state change")
	}
}

func TestPauseSuppressesEmission(t *testing.T) {
	m, out := newTestMonitor(t)
	m.Subscribe(Rule{UUID: "r1", Iface: "eth0", Kind: KindUp, Requester: event.User()})
	m.Pause()
	m.NotifyLinkChange("eth0", true)

	select {
	case <-out:
		t.Fatal("must not emit while paused")
	default:
	}
}

func TestResumeReemitsCurrentState(t *testing.T) {
	m, out := newTestMonitor(t)
	m.Pause()
	m.NotifyLinkChange("eth0", true)
	m.Subscribe(Rule{UUID: "r1", Iface: "eth0", Kind: KindUp, Requester: event.User()})

	m.Resume()
	select {
	case evt := <-out:
		assert.Equal(t, "LinkUp", evt.Kind)
	default:
		t.Fatal("resume must re-evaluate and emit satisfied subscriptions")
	}
}

func TestWifiAnyUsesPerTypeNotification(t *testing.T) {
	m, out := newTestMonitor(t)
	m.Subscribe(Rule{UUID: "r1", WifiAny: true, Kind: KindUp, Requester: event.User()})

	m.NotifyLinkChange("wlan0", true) // must not satisfy a WifiAny rule
	select {
	case <-out:
		t.Fatal("per-interface notifications must not satisfy WifiAny rules")
	default:
	}

	m.NotifyWifiAny(true)
	select {
	case evt := <-out:
		assert.Equal(t, "LinkUp", evt.Kind)
	default:
		t.Fatal("expected NotifyWifiAny to satisfy the WifiAny rule")
	}
}

func TestUnsubscribeStopsFutureEmission(t *testing.T) {
	m, out := newTestMonitor(t)
	m.Subscribe(Rule{UUID: "r1", Iface: "eth0", Kind: KindUp, Requester: event.User()})
	m.Unsubscribe("r1")

	m.NotifyLinkChange("eth0", true)
	select {
	case <-out:
		t.Fatal("must not emit after unsubscribe")
	default:
	}
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package wifi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nipart.dev/nipart/internal/linkmonitor"
	"nipart.dev/nipart/internal/nerr"
	"nipart.dev/nipart/internal/nstate"
)

func TestApplyIsSilentWhenNoWifiInterfacePresent(t *testing.T) {
	p := New(nil)
	merged, err := nstate.MergeInterfaces(nstate.NewInterfaces(), nstate.NewInterfaces())
	require.NoError(t, err)

	err = p.Apply(context.Background(), merged, nil, false)
	assert.NoError(t, err)
}

func TestApplyReportsNoSupportForWifiInterface(t *testing.T) {
	p := New(nil)
	desired := nstate.NewInterfaces()
	desired.Push(&nstate.Interface{BaseInterface: nstate.BaseInterface{Name: "wlan0", Type: nstate.TypeWifiCfg}})
	current := nstate.NewInterfaces()

	merged, err := nstate.MergeInterfaces(desired, current)
	require.NoError(t, err)

	err = p.Apply(context.Background(), merged, nil, false)
	require.Error(t, err)
	assert.Equal(t, nerr.KindNoSupport, nerr.GetKind(err))
}

func TestRegisterMonitorRuleAcceptsWithoutError(t *testing.T) {
	p := New(nil)
	err := p.RegisterMonitorRule(linkmonitor.Rule{UUID: "r1", Iface: "wlan0", Kind: linkmonitor.KindUp})
	assert.NoError(t, err)
}

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDraftRequest(t *testing.T) {
	req, err := draftRequest(options{shipment: "S-1", boxes: "3, 1,2", charges: "-"})
	require.NoError(t, err)
	require.Equal(t, []int{3, 1, 2}, req.BoxNumbers)
	require.Nil(t, req.ChargeTypeIDs)

	req, err = draftRequest(options{shipment: "S-1", all: true, charges: ""})
	require.NoError(t, err)
	require.NotNil(t, req.ChargeTypeIDs)
	require.Empty(t, req.ChargeTypeIDs)

	_, err = draftRequest(options{boxes: "1,x"})
	require.Error(t, err)
}

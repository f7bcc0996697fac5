// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/store"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

func TestConnect_InvalidDSN(t *testing.T) {
	_, err := store.Connect(context.Background(), "not a dsn ::: %%")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

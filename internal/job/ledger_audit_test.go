package job

import (
	"context"
	"fmt"
	"testing"
	"time"

	"racebet/internal/config"
	"racebet/internal/domain"
	"racebet/internal/model"
	"racebet/internal/repository"
	"racebet/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLedgerAuditFindsMismatch(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	accounts := repository.NewAccountRepository(db)
	ledger := repository.NewLedgerRepository(db)
	now := time.Now().UTC()

	initial, err := domain.MoneyFromCents(domain.InitialCreditCents)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		acc := domain.NewAccount(domain.UserID(fmt.Sprintf("user-%d", i)), initial, now)
		inserted, err := accounts.InsertIfAbsent(ctx, nil, acc)
		require.NoError(t, err)
		require.True(t, inserted)
		require.NoError(t, ledger.Append(ctx, nil, domain.InitialCreditEntry(acc, now)))
	}

	// 绕过服务层直接改余额
	require.NoError(t, db.Model(&model.Account{}).Where("id = ?", "user-3").
		Update("balance_minor", 12345).Error)

	j := NewLedgerAuditJob(db, config.AuditConfig{IntervalSeconds: 60, BatchSize: 2}, zap.NewNop())
	report := j.RunOnce(ctx)

	assert.Equal(t, 5, report.Checked)
	assert.Equal(t, []domain.UserID{"user-3"}, report.Mismatched)
}

func TestLedgerAuditEmpty(t *testing.T) {
	db := testutil.NewDB(t)
	j := NewLedgerAuditJob(db, config.AuditConfig{IntervalSeconds: 60, BatchSize: 10}, zap.NewNop())

	report := j.RunOnce(context.Background())
	assert.Zero(t, report.Checked)
	assert.Empty(t, report.Mismatched)
}

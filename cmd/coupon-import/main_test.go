package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burgershop/order-service/internal/domain/coupon"
)

type fakeStore struct {
	mu     sync.Mutex
	byCode map[string]coupon.Coupon
}

func newFakeStore() *fakeStore {
	return &fakeStore{byCode: make(map[string]coupon.Coupon)}
}

func (s *fakeStore) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byCode[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

func (s *fakeStore) Insert(_ context.Context, c coupon.Coupon) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCode[c.Code]; ok {
		return false, nil
	}
	s.byCode[c.Code] = c
	return true, nil
}

func writeGz(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coupons.jsonl.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseRecord(t *testing.T) {
	for _, tt := range []struct {
		name    string
		line    string
		check   func(t *testing.T, c coupon.Coupon)
		wantErr string
	}{
		{
			name: "StringValue",
			line: `{"id":"c1","code":" SAVE10 ","userId":"u1","discountType":"percentage","value":"0.10","expiresAt":"2026-12-31T23:59:59Z","prizeName":"10% off"}`,
			check: func(t *testing.T, c coupon.Coupon) {
				assert.Equal(t, "c1", c.ID)
				assert.Equal(t, "SAVE10", c.Code)
				assert.Equal(t, "u1", c.AssignedTo)
				assert.Equal(t, coupon.DiscountPercentage, c.DiscountType)
				assert.True(t, c.Value.Equal(decimal.RequireFromString("0.1")))
				assert.Equal(t, 2026, c.ExpiresAt.Year())
				assert.Equal(t, "10% off", c.PrizeName)
			},
		},
		{
			name: "NumberValueAndGeneratedID",
			line: `{"code":"FLAT5","userId":"u1","discountType":"flat","value":5,"expiresAt":"2026-12-31T00:00:00+02:00","extra":[1,2]}`,
			check: func(t *testing.T, c coupon.Coupon) {
				assert.NotEmpty(t, c.ID)
				assert.True(t, c.Value.Equal(decimal.NewFromInt(5)))
				assert.Equal(t, 22, c.ExpiresAt.Hour())
			},
		},
		{
			name: "FreeItemWithoutValue",
			line: `{"code":"FREEBURGER","userId":"u1","discountType":"free_item","expiresAt":"2026-12-31T00:00:00Z"}`,
			check: func(t *testing.T, c coupon.Coupon) {
				assert.True(t, c.Value.IsZero())
			},
		},
		{name: "MissingCode", line: `{"userId":"u1","discountType":"flat","value":1,"expiresAt":"2026-12-31T00:00:00Z"}`, wantErr: "code is required"},
		{name: "MissingUser", line: `{"code":"X","discountType":"flat","value":1,"expiresAt":"2026-12-31T00:00:00Z"}`, wantErr: "userId is required"},
		{name: "BadType", line: `{"code":"X","userId":"u1","discountType":"bogo","value":1,"expiresAt":"2026-12-31T00:00:00Z"}`, wantErr: "unsupported discount type"},
		{name: "MissingValue", line: `{"code":"X","userId":"u1","discountType":"flat","expiresAt":"2026-12-31T00:00:00Z"}`, wantErr: "value is required"},
		{name: "NegativeValue", line: `{"code":"X","userId":"u1","discountType":"flat","value":-1,"expiresAt":"2026-12-31T00:00:00Z"}`, wantErr: "must not be negative"},
		{name: "BadExpiry", line: `{"code":"X","userId":"u1","discountType":"flat","value":1,"expiresAt":"tomorrow"}`, wantErr: "expiresAt"},
		{name: "NotJSON", line: `SAVE10`, wantErr: "decode"},
		{name: "WrongFieldType", line: `{"code":42,"userId":"u1","discountType":"flat","value":1,"expiresAt":"2026-12-31T00:00:00Z"}`, wantErr: "code"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c, err := parseRecord([]byte(tt.line))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestImportFiles(t *testing.T) {
	path := writeGz(t,
		`{"code":"A1","userId":"u1","discountType":"flat","value":1,"expiresAt":"2026-12-31T00:00:00Z"}`,
		`{"code":"A2","userId":"u2","discountType":"flat","value":2,"expiresAt":"2026-12-31T00:00:00Z"}`,
		``,
		`not json`,
		`{"code":"A1","userId":"u9","discountType":"flat","value":9,"expiresAt":"2026-12-31T00:00:00Z"}`,
	)
	store := newFakeStore()
	store.byCode["OLD"] = coupon.Coupon{Code: "OLD", AssignedTo: "u1"}
	second := writeGz(t,
		`{"code":"OLD","userId":"u1","discountType":"flat","value":1,"expiresAt":"2026-12-31T00:00:00Z"}`,
		`{"code":"B1","userId":"u3","discountType":"percentage","value":"0.5","expiresAt":"2026-12-31T00:00:00Z"}`,
	)

	// One writer keeps insertion in input order.
	st, err := importFiles(context.Background(), store, []string{path, second}, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(5), st.read.Load())
	assert.Equal(t, int64(3), st.inserted.Load())
	assert.Equal(t, int64(2), st.duplicates.Load())
	assert.Equal(t, int64(1), st.invalid.Load())

	a1, err := store.FindByCode(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, "u1", a1.AssignedTo, "first occurrence wins")
	assert.Len(t, store.byCode, 4)
}

type failingStore struct{ *fakeStore }

func (s *failingStore) Insert(context.Context, coupon.Coupon) (bool, error) {
	return false, errors.New("disk full")
}

func TestImportFiles_WriterError(t *testing.T) {
	path := writeGz(t,
		`{"code":"A1","userId":"u1","discountType":"flat","value":1,"expiresAt":"2026-12-31T00:00:00Z"}`,
	)
	store := &failingStore{fakeStore: newFakeStore()}

	_, err := importFiles(context.Background(), store, []string{path}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestImportFiles_MissingFile(t *testing.T) {
	_, err := importFiles(context.Background(), newFakeStore(), []string{filepath.Join(t.TempDir(), "nope.gz")}, 1)
	require.Error(t, err)
}

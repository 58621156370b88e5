package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/pkg/api"
	"storefront-checkout/pkg/checkout"
	"storefront-checkout/pkg/config"
	"storefront-checkout/pkg/database"
)

func TestParseItem(t *testing.T) {
	tests := []struct {
		in      string
		want    lineItem
		wantErr bool
	}{
		{in: "p1", want: lineItem{ProductID: "p1", Quantity: 1}},
		{in: " p2:3 ", want: lineItem{ProductID: "p2", Quantity: 3}},
		{in: "p3:0", wantErr: true},
		{in: "p3:x", wantErr: true},
		{in: ":2", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseItem(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTableAlignsRunes(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, "Cart")
	table.AddColumn("Name", 12, AlignLeft)
	table.AddColumn("Qty", 5, AlignRight)
	table.PrintHeader()
	table.PrintRow("Áo thun", 2)
	table.PrintRow("Giày sneaker cũ màu đen", 1)
	table.PrintFooter()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "Cart:", lines[0])
	assert.Equal(t, "│ Áo thun    │    2│", lines[4])
	assert.Equal(t, "│ Giày sne...│    1│", lines[5])

	width := len([]rune(lines[1]))
	for _, l := range lines[1:] {
		assert.Equal(t, width, len([]rune(l)), l)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "Hà ...", truncate("Hà Nội Hà Nội", 6))
	assert.Equal(t, "", truncate("abc", 0))
}

func TestDescribeResult(t *testing.T) {
	ok := checkout.Result{Success: true, Outcome: checkout.OutcomeConfirmedLocally, OrderID: "o1", TxnRef: "T1"}
	assert.Equal(t, "confirmed_locally", tallyKey(ok))
	assert.Contains(t, describe(ok), "CONFIRMED_LOCALLY - Order: o1, Txn: T1")

	declined := checkout.Result{Kind: checkout.KindDeclined, Message: "Tài khoản không đủ số dư (Mã lỗi: 51)"}
	assert.Equal(t, "declined", tallyKey(declined))
	assert.Equal(t, "FAILED declined - Tài khoản không đủ số dư (Mã lỗi: 51)", describe(declined))
}

func newTestApp(t *testing.T, handler http.Handler) *app {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	a, err := newApp(config.Config{
		BackendBaseURL: ts.URL,
		HTTPTimeout:    2 * time.Second,
		Store:          config.Store{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "state.db")},
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestSignInPersistsSession(t *testing.T) {
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/register" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"token":"tok-1","user":{"id":"u1","email":"an@example.com"}}}`))
	}))
	ctx := context.Background()

	d, err := a.newDevice(ctx, a.db)
	require.NoError(t, err)
	user, err := d.signIn(ctx, a.public, api.RegisterRequest{Email: "an@example.com", Password: "pw"}, true)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	reopened, err := a.newDevice(ctx, a.db)
	require.NoError(t, err)
	assert.True(t, reopened.session.Authenticated())
	assert.Equal(t, "u1", reopened.session.UserID())

	token, ok, err := a.db.GetState(ctx, database.KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", token)
}

func TestPrintDuplicates(t *testing.T) {
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"T2":3,"T1":2}}`))
	}))
	c := &cli{app: a}

	var buf bytes.Buffer
	c.printDuplicates(context.Background(), &buf)

	out := buf.String()
	assert.Contains(t, out, "Duplicate orders:")
	assert.Less(t, strings.Index(out, "T1"), strings.Index(out, "T2"))
}

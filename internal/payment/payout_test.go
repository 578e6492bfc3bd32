package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jacl-coder/EyeSurvival-Server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transferStub(t *testing.T) (*Paystack, *[]map[string]any) {
	t.Helper()
	var bodies []map[string]any
	record := func(r *http.Request) map[string]any {
		var m map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		bodies = append(bodies, m)
		return m
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /bank", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":true,"message":"Banks retrieved","data":[
			{"name":"Access Bank","code":"044","slug":"access-bank"},{"name":"GTBank","code":"058"}]}`))
	})
	mux.HandleFunc("GET /bank/resolve", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("account_number") != "0123456789" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"status":false,"message":"Could not resolve account name"}`))
			return
		}
		w.Write([]byte(`{"status":true,"message":"Account number resolved","data":{
			"account_number":"0123456789","account_name":"ADA OBI"}}`))
	})
	mux.HandleFunc("POST /transferrecipient", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.Write([]byte(`{"status":true,"message":"Recipient created","data":{"recipient_code":"RCP_1"}}`))
	})
	mux.HandleFunc("POST /transfer", func(w http.ResponseWriter, r *http.Request) {
		m := record(r)
		w.Write([]byte(`{"status":true,"message":"Transfer requires OTP","data":{
			"reference":"` + m["reference"].(string) + `","transfer_code":"TRF_1","status":"otp","amount":50000}}`))
	})
	mux.HandleFunc("POST /transfer/finalize_transfer", func(w http.ResponseWriter, r *http.Request) {
		m := record(r)
		if m["otp"] != "123456" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"status":false,"message":"Invalid OTP"}`))
			return
		}
		w.Write([]byte(`{"status":true,"message":"Transfer has been queued","data":{
			"reference":"wd-1","transfer_code":"TRF_1","status":"pending","amount":50000}}`))
	})
	mux.HandleFunc("GET /transfer/verify/{ref}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("ref") {
		case "wd-1":
			w.Write([]byte(`{"status":true,"message":"Transfer retrieved","data":{
				"reference":"wd-1","transfer_code":"TRF_1","status":"success","amount":50000}}`))
		case "wd-2":
			w.Write([]byte(`{"status":true,"message":"Transfer retrieved","data":{
				"reference":"wd-2","transfer_code":"TRF_2","status":"reversed","amount":50000}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"status":false,"message":"Transfer not found"}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewPaystack(config.PaymentConfig{BaseURL: srv.URL, SecretKey: "sk_test"}, srv.Client()), &bodies
}

func TestListBanks(t *testing.T) {
	p, _ := transferStub(t)

	banks, err := p.ListBanks(context.Background())
	require.NoError(t, err)
	require.Len(t, banks, 2)
	assert.Equal(t, Bank{Name: "Access Bank", Code: "044", Slug: "access-bank"}, banks[0])
}

func TestResolveAccount(t *testing.T) {
	p, _ := transferStub(t)
	ctx := context.Background()

	acct, err := p.ResolveAccount(ctx, "0123456789", "044")
	require.NoError(t, err)
	assert.Equal(t, "ADA OBI", acct.Name)

	_, err = p.ResolveAccount(ctx, "9999999999", "044")
	assert.ErrorIs(t, err, ErrAccountUnresolved)

	_, err = p.ResolveAccount(ctx, "", "044")
	assert.ErrorIs(t, err, ErrAccountUnresolved)
}

func TestTransferLifecycle(t *testing.T) {
	p, bodies := transferStub(t)
	ctx := context.Background()

	tr, err := p.InitiateTransfer(ctx, TransferRequest{
		Amount: 50000, AccountNumber: "0123456789", BankCode: "044",
		AccountName: "ADA OBI", Reason: "Wallet withdrawal", Reference: "wd-1",
	})
	require.NoError(t, err)
	assert.Equal(t, TransferOTP, tr.Status)
	assert.Equal(t, "TRF_1", tr.Code)

	require.Len(t, *bodies, 2)
	assert.Equal(t, "nuban", (*bodies)[0]["type"])
	assert.Equal(t, "RCP_1", (*bodies)[1]["recipient"])
	assert.EqualValues(t, 50000, (*bodies)[1]["amount"])

	_, err = p.FinalizeTransfer(ctx, "TRF_1", "000000")
	assert.ErrorIs(t, err, ErrTransferRejected)

	tr, err = p.FinalizeTransfer(ctx, "TRF_1", "123456")
	require.NoError(t, err)
	final, _ := tr.Settled()
	assert.False(t, final)

	tr, err = p.VerifyTransfer(ctx, "wd-1")
	require.NoError(t, err)
	final, paid := tr.Settled()
	assert.True(t, final)
	assert.True(t, paid)

	tr, err = p.VerifyTransfer(ctx, "wd-2")
	require.NoError(t, err)
	final, paid = tr.Settled()
	assert.True(t, final)
	assert.False(t, paid)

	_, err = p.VerifyTransfer(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownTransfer)
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/onnwee/reddit-scraper-fleet/internal/apierr"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
)

type saveAccountRequest struct {
	AccountName string                   `json:"account_name"`
	Credentials store.AccountCredentials `json:"credentials"`
}

// SaveAccount stores a named credential set in the vault.
func SaveAccount(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.InvalidJSON())
			return
		}
		if req.AccountName == "" {
			apierr.WriteErrorWithContext(w, r, apierr.MissingField("account_name"))
			return
		}
		c := req.Credentials
		if c.ClientID == "" || c.ClientSecret == "" || c.Username == "" || c.Password == "" {
			apierr.WriteErrorWithContext(w, r, apierr.MissingField("credentials"))
			return
		}
		if err := d.Store.SaveAccount(r.Context(), store.AccountDoc{
			AccountName: req.AccountName,
			Credentials: c,
		}); err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Database(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"account_name": req.AccountName, "status": "saved"})
	}
}

// accountView is an account row with secrets masked.
type accountView struct {
	store.AccountDoc
}

func maskAccount(doc store.AccountDoc) accountView {
	doc.Credentials = maskedCredentials(doc.Credentials)
	return accountView{doc}
}

// ListAccounts lists vault entries with masked credentials.
func ListAccounts(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := d.Store.ListAccounts(r.Context())
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Database(err.Error()))
			return
		}
		views := make([]accountView, 0, len(docs))
		for _, doc := range docs {
			views = append(views, maskAccount(doc))
		}
		writeJSON(w, http.StatusOK, map[string]any{"accounts": views, "count": len(views)})
	}
}

// GetAccount returns one vault entry with masked credentials.
func GetAccount(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		doc, err := d.Store.GetAccount(r.Context(), name)
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Database(err.Error()))
			return
		}
		if doc == nil {
			apierr.WriteErrorWithContext(w, r, apierr.AccountNotFound(name))
			return
		}
		writeJSON(w, http.StatusOK, maskAccount(*doc))
	}
}

// DeleteAccount removes a vault entry.
func DeleteAccount(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		existed, err := d.Store.DeleteAccount(r.Context(), name)
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Database(err.Error()))
			return
		}
		if !existed {
			apierr.WriteErrorWithContext(w, r, apierr.AccountNotFound(name))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"account_name": name, "status": "deleted"})
	}
}

// AccountStats reports vault size.
func AccountStats(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := d.Store.CountAccounts(r.Context())
		if err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.Database(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"total_accounts": count})
	}
}

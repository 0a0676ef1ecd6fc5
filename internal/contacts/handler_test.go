package contacts

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	_ "github.com/fiscochiaro/fatture/testing"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	handler := NewHandler(nil, NewService(newMemoryRepo()))
	r := chi.NewRouter()
	r.Route("/contacts", handler.MountRoutes)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerUpsertAndShow(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/contacts/", map[string]string{
		"name":   "Rossi Impianti SRL",
		"tax_id": "01234560987",
		"city":   "Brescia",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var saved Contact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	require.Equal(t, KindClient, saved.Kind)

	rec = doJSON(t, router, http.MethodGet, "/contacts/Rossi%20Impianti%20SRL", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/contacts/Sconosciuto", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerUpsertValidation(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/contacts/", map[string]string{"name": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/contacts/", map[string]string{
		"name":      "Verdi",
		"pec_email": "not-an-email",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/contacts/", map[string]string{
		"name": "Verdi",
		"kind": "PARTNER",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerListAndDelete(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/contacts/", map[string]string{"name": "Cartoleria Verdi", "kind": "SUPPLIER"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/contacts/", map[string]string{"name": "Rossi Impianti SRL"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/contacts/?kind=SUPPLIER", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Contacts []Contact `json:"contacts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Contacts, 1)
	require.Equal(t, "Cartoleria Verdi", payload.Contacts[0].Name)

	rec = doJSON(t, router, http.MethodDelete, "/contacts/Cartoleria%20Verdi", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/contacts/Cartoleria%20Verdi", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

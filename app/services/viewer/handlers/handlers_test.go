package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/pocketcoin/node/app/services/viewer/handlers"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_Index(t *testing.T) {
	t.Log("Given the need to serve the event viewer page.")
	{
		shutdown := make(chan os.Signal, 1)
		app, err := handlers.UIMux("test", "https://node.example.com:8080", shutdown, zap.NewNop().Sugar())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the mux: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to construct the mux.", success)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		app.ServeHTTP(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("\t%s\tShould receive a 200: %d", failed, w.Code)
		}
		t.Logf("\t%s\tShould receive a 200.", success)

		if !strings.Contains(w.Body.String(), "wss://node.example.com:8080/v1/events") {
			t.Fatalf("\t%s\tShould point the page at the node's event stream.", failed)
		}
		t.Logf("\t%s\tShould point the page at the node's event stream.", success)
	}
}

// Package statusapi exposes a read-only HTTP view of the NAT core's live
// state (SPEC_FULL.md §2.E, "status/metrics HTTP surface") plus the Prometheus scrape
// endpoint (spec §7).
//
// Grounded on server/server.go and server/handlers.go's gorilla/mux
// subrouter-plus-JSON-handler shape; the SSE log-tail endpoint
// (server/sse.go) has no counterpart here since there is no interactive
// terminal stream in this domain.
package statusapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bscnat/sccp"
	"bscnat/trunk"
)

// Server is the status HTTP surface. It only reads state; it never
// mutates the trunk or session table.
type Server struct {
	addr   string
	trunk  *trunk.Trunk
	bscs   map[string]*trunk.BSC
	sccp   *sccp.Table
	router *mux.Router
}

func New(addr string, t *trunk.Trunk, bscs map[string]*trunk.BSC, sessions *sccp.Table) *Server {
	s := &Server{addr: addr, trunk: t, bscs: bscs, sccp: sessions}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/api/trunk", s.handleTrunk).Methods("GET")
	s.router.HandleFunc("/api/trunk/{bsc}", s.handleBSC).Methods("GET")
	s.router.HandleFunc("/api/sccp", s.handleSCCP).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return s
}

// ListenAndServe blocks serving the status API on addr.
func (s *Server) ListenAndServe() error {
	return http.ListenAndServe(s.addr, s.router)
}

type bscStatus struct {
	Name         string `json:"name"`
	PeerAddr     string `json:"peer_addr"`
	MaxEndpoints int    `json:"max_endpoints"`
	Initialized  bool   `json:"initialized"`
}

func (s *Server) handleTrunk(w http.ResponseWriter, r *http.Request) {
	out := make([]bscStatus, 0, len(s.bscs))
	for name, bsc := range s.bscs {
		out = append(out, bscStatus{
			Name:         name,
			PeerAddr:     bsc.PeerAddr,
			MaxEndpoints: bsc.MaxEndpoints,
			Initialized:  bsc.Initialized(),
		})
	}
	writeJSON(w, out)
}

type endpointStatus struct {
	Endpoint int  `json:"endpoint"`
	InUse    bool `json:"in_use"`
}

func (s *Server) handleBSC(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["bsc"]
	bsc, ok := s.bscs[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	out := make([]endpointStatus, 0, bsc.MaxEndpoints+1)
	for i := 0; i <= bsc.MaxEndpoints; i++ {
		out = append(out, endpointStatus{Endpoint: i, InUse: bsc.InUse(i)})
	}
	writeJSON(w, out)
}

type sessionStatus struct {
	BSCName string `json:"bsc_name"`
	MSCEndp int    `json:"msc_endp"`
	BSCEndp int    `json:"bsc_endp"`
	Bound   bool   `json:"bound"`
}

func (s *Server) handleSCCP(w http.ResponseWriter, r *http.Request) {
	out := []sessionStatus{}
	for _, sess := range s.sccp.All() {
		name := ""
		if sess.BSC != nil {
			name = sess.BSC.Name
		}
		out = append(out, sessionStatus{
			BSCName: name,
			MSCEndp: sess.MSCEndp,
			BSCEndp: sess.BSCEndp,
			Bound:   sess.Bound(),
		})
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

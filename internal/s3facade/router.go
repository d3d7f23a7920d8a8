package s3facade

import (
	"net/http"

	"github.com/gorilla/mux"

	bd "github.com/cospectrum/boxdrive"
)

// NewRouter builds the S3 HTTP subset of routes over store.
func NewRouter(store ObjectStore) *mux.Router {
	h := &handler{store: store}
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)

	r.HandleFunc("/", h.listBuckets).Methods(http.MethodGet)
	r.HandleFunc("/{bucket}", h.createBucket).Methods(http.MethodPut)
	r.HandleFunc("/{bucket}", h.deleteBucket).Methods(http.MethodDelete)
	r.HandleFunc("/{bucket}", h.listObjects).Methods(http.MethodGet)
	r.HandleFunc("/{bucket}/{key:.*}", h.getObject).Methods(http.MethodGet)
	r.HandleFunc("/{bucket}/{key:.*}", h.headObject).Methods(http.MethodHead)
	r.HandleFunc("/{bucket}/{key:.*}", h.putObject).Methods(http.MethodPut)
	r.HandleFunc("/{bucket}/{key:.*}", h.deleteObject).Methods(http.MethodDelete)
	return r
}

// requestIDMiddleware stamps every response with an x-amz-request-id-style
// header, using the same UUIDv7 generator boxdrive.NewID() mints object IDs
// with, mirroring real S3's request tracing.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-amz-request-id", bd.NewID())
		next.ServeHTTP(w, r)
	})
}

package pipeline

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/MeKo-Tech/evalocr/internal/assets"
	"github.com/MeKo-Tech/evalocr/internal/engine/enginetest"
	"github.com/MeKo-Tech/evalocr/internal/models"
)

// newAssetServer serves a small body for every traineddata file except
// those of the missing languages, which return 404.
func newAssetServer(missing ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, lang := range missing {
			if strings.HasSuffix(r.URL.Path, "/"+lang+models.AssetExt) {
				http.NotFound(w, r)
				return
			}
		}
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte("traineddata"))
	}))
}

func assetSource(srv *httptest.Server) *assets.HTTPSource {
	return assets.NewHTTPSource(map[models.Variant]string{
		models.VariantFast:     srv.URL + "/fast",
		models.VariantStandard: srv.URL + "/standard",
		models.VariantBest:     srv.URL + "/best",
	}, srv.Client())
}

// helloWorldEngine recognizes the mixed-script sample with the primary
// set and only its Latin part with the fallback sets. Load fetches the
// set's language data from src.
func helloWorldEngine(src assets.Source) *enginetest.Factory {
	return enginetest.NewFactory("Hello World").
		Script(models.PrimaryMixed, enginetest.Behavior{Text: "Hello  World 测 试"}).
		WithAssets(src)
}

package cmd

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/MeKo-Tech/evalocr/internal/assets"
	"github.com/MeKo-Tech/evalocr/internal/config"
	"github.com/MeKo-Tech/evalocr/internal/engine/enginetest"
	"github.com/MeKo-Tech/evalocr/internal/models"
	"github.com/MeKo-Tech/evalocr/internal/pipeline"
)

// isolate keeps config files and EVALOCR_* variables of the host out of
// the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, config.EnvPrefix+"_") {
			t.Setenv(key, "")
		}
	}
	return dir
}

// fakeApp returns CLI state whose pipelines run on the fake engine with
// language assets served over HTTP.
func fakeApp(t *testing.T, f *enginetest.Factory, missing ...string) *app {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, lang := range missing {
			if strings.HasSuffix(r.URL.Path, "/"+lang+models.AssetExt) {
				http.NotFound(w, r)
				return
			}
		}
		_, _ = w.Write([]byte("traineddata"))
	}))
	t.Cleanup(srv.Close)
	src := assets.NewHTTPSource(map[models.Variant]string{
		models.VariantFast:     srv.URL + "/fast",
		models.VariantStandard: srv.URL + "/standard",
		models.VariantBest:     srv.URL + "/best",
	}, srv.Client())

	return &app{buildPipeline: func(cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, error) {
		return pipeline.NewBuilder().
			WithConfig(cfg.ToPipelineConfig()).
			WithAssetSource(src).
			WithFactory(f.WithAssets(src)).
			WithLogger(logger).
			Build()
	}}
}

func helloWorldFactory() *enginetest.Factory {
	return enginetest.NewFactory("Hello World").
		Script(models.PrimaryMixed, enginetest.Behavior{Text: "Hello  World 测 试"})
}

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes a fresh command tree.
func run(t *testing.T, a *app, stdin io.Reader, args ...string) result {
	t.Helper()
	root := newRootCommand(a)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)
	err := root.Execute()
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

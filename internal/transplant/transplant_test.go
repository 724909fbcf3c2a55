package transplant

import (
	"context"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentic-research/regraft/api"
	"github.com/agentic-research/regraft/internal/output"
	"github.com/agentic-research/regraft/internal/pysrc"
)

const templateModule = `import asyncio

from fasthtml.common import *

from server import DB_FILENAME, logger


class KungfuWorkflow:
    """Canonical workflow scaffold every plugin derives from."""

    APP_NAME = 'kungfu'
    DISPLAY_NAME = 'Kung Fu Download'
    ENDPOINT_MESSAGE = 'Stream data from the dojo.'
    TRAINING_PROMPT = 'kungfu.md'
    QUERY_TEMPLATES = {'demo': 'SELECT 1'}
    ROLES = ['Workshop']
    UI_CONSTANTS = {'spacing': '1rem'}

    def __init__(self, app, pipulate, pipeline, db, app_name=APP_NAME):
        self.app = app
        self.app_name = app_name
        app.route(f'/{app_name}/init', methods=['POST'])(self.init)
        app.route(f'/{app_name}/revert', methods=['POST'])(self.revert)
        app.route(f'/{app_name}/finalize', methods=['POST'])(self.finalize)
        app.route(f'/{app_name}/unfinalize', methods=['POST'])(self.unfinalize)

    async def landing(self, request):
        return 'the canonical landing page'

    async def init(self, request):
        return 'init'

    async def revert(self, request):
        return 'revert'

    async def finalize(self, request):
        return 'finalize'

    async def unfinalize(self, request):
        return 'unfinalize'

    async def step_analysis(self, request):
        return 'scaffold analysis step'
`

const sourceModule = `import asyncio

from fasthtml.common import *

from server import DB_FILENAME, logger


class ParameterBuster:
    """Strips tracking parameters from crawl URLs."""

    APP_NAME = 'parameterbuster'
    DISPLAY_NAME = 'Parameter Buster'
    ENDPOINT_MESSAGE = 'Bust those parameters.'
    TRAINING_PROMPT = 'parameter_buster.md'
    QUERY_TEMPLATES = {'gsc': 'SELECT url FROM gsc'}
    ROLES = ['Botify']
    UI_CONSTANTS = {'spacing': '2rem'}

    def __init__(self, app, pipulate, pipeline, db, app_name=APP_NAME):
        self.app = app
        self.app_name = app_name
        app.route(f'/{app_name}/init', methods=['POST'])(self.init)
        app.route(f'/{app_name}/revert', methods=['POST'])(self.revert)
        app.route(f'/{app_name}/finalize', methods=['POST'])(self.finalize)
        app.route(f'/{app_name}/unfinalize', methods=['POST'])(self.unfinalize)
        app.route('/parameterbuster/step_parameters_process', methods=['POST'])(self.step_parameters_process)

    async def landing(self, request):
        return 'the source landing page'

    async def init(self, request):
        return 'init'

    async def revert(self, request):
        return 'revert'

    async def finalize(self, request):
        return 'finalize'

    async def unfinalize(self, request):
        return 'unfinalize'

    async def step_parameters(self, request):
        return ParameterBuster.DISPLAY_NAME

    async def step_parameters_submit(self, request):
        url = '/parameterbuster/step_parameters_process'
        return url

    async def step_parameters_process(self, request):
        return 'processed'
`

const (
	templatePath = "/plugins/500_kungfu.py"
	sourcePath   = "/plugins/110_parameter_buster.py"
)

func newEngine(t *testing.T, fixtures map[string]string) *Engine {
	t.Helper()
	fs := memfs.New()
	for path, content := range fixtures {
		require.NoError(t, util.WriteFile(fs, path, []byte(content), 0o644))
	}
	return New(fs, api.DefaultRuleSet(), zaptest.NewLogger(t))
}

func defaultFixtures() map[string]string {
	return map[string]string{
		templatePath: templateModule,
		sourcePath:   sourceModule,
	}
}

func readOutput(t *testing.T, e *Engine, path string) []byte {
	t.Helper()
	data, err := util.ReadFile(e.fs, path)
	require.NoError(t, err)
	return data
}

func TestRun_SuffixedVariant(t *testing.T) {
	e := newEngine(t, defaultFixtures())

	res, err := e.Run(context.Background(), templatePath, sourcePath, output.SuffixedMode("5"))
	require.NoError(t, err)

	assert.Equal(t, "/plugins/110_parameter_buster5.py", res.Path)
	assert.Equal(t, "ParameterBuster5", res.ClassName)
	assert.Equal(t, "parameterbuster5", res.AppName)
	assert.Empty(t, res.Warnings)

	out := readOutput(t, e, res.Path)
	mod, err := pysrc.Parse(context.Background(), res.Path, out)
	require.NoError(t, err)

	assert.Equal(t, "ParameterBuster5", mod.ClassName)
	assert.Equal(t, "parameterbuster5", mod.AppName)

	// Template scaffolding survives untouched; workflow methods come from the
	// Source; the Template's own step placeholder is inherited.
	names := mod.MethodNames()
	assert.Contains(t, names, "landing")
	assert.Contains(t, names, "step_parameters")
	assert.Contains(t, names, "step_parameters_submit")
	assert.Contains(t, names, "step_parameters_process")
	assert.Contains(t, names, "step_analysis")

	text := string(out)
	assert.Contains(t, text, "'the canonical landing page'")
	assert.NotContains(t, text, "'the source landing page'")

	// Overrides land; non-overridable attributes keep the Template's value.
	assert.Contains(t, text, "'parameter_buster.md'")
	assert.Contains(t, text, "SELECT url FROM gsc")
	assert.Contains(t, text, "'Kung Fu Download'")
	assert.NotContains(t, text, "'Parameter Buster'")

	// A grafted method is the Source's text with only the identity tokens
	// substituted.
	assert.Contains(t, text, "    async def step_parameters_submit(self, request):\n        url = '/parameterbuster5/step_parameters_process'\n        return url\n")

	// Every transplanted reference reads the new identity.
	assert.Contains(t, text, "ParameterBuster5.DISPLAY_NAME")
	assert.Contains(t, text, "'/parameterbuster5/step_parameters_process'")
	assert.NotContains(t, text, "/parameterbuster/")
}

func TestRun_CustomRouteAnchoredAfterStandardRoutes(t *testing.T) {
	e := newEngine(t, defaultFixtures())

	res, err := e.Run(context.Background(), templatePath, sourcePath, output.SuffixedMode("5"))
	require.NoError(t, err)

	text := string(readOutput(t, e, res.Path))
	anchor := strings.Index(text, "(self.unfinalize)")
	custom := strings.Index(text, "'/parameterbuster5/step_parameters_process'")
	landing := strings.Index(text, "async def landing")
	require.True(t, anchor >= 0 && custom >= 0 && landing >= 0)
	assert.Greater(t, custom, anchor)
	assert.Less(t, custom, landing)
}

func TestRun_Deterministic(t *testing.T) {
	e := newEngine(t, defaultFixtures())
	mode := output.SuffixedMode("5")

	res, err := e.Run(context.Background(), templatePath, sourcePath, mode)
	require.NoError(t, err)
	first := readOutput(t, e, res.Path)

	res2, err := e.Run(context.Background(), templatePath, sourcePath, mode)
	require.NoError(t, err)
	require.Equal(t, res.Path, res2.Path)

	assert.Equal(t, first, readOutput(t, e, res2.Path))
}

func TestRun_AmbiguousCollisionAborts(t *testing.T) {
	fixtures := defaultFixtures()
	fixtures[sourcePath] = sourceModule + `
    async def step_analysis(self, request):
        return 'conflicting analysis'
`
	// A pre-existing target must survive an aborted run untouched.
	fixtures["/plugins/110_parameter_buster5.py"] = "# sentinel\n"
	e := newEngine(t, fixtures)

	_, err := e.Run(context.Background(), templatePath, sourcePath, output.SuffixedMode("5"))
	require.Error(t, err)

	var amb *AmbiguousClassificationError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, []string{"step_analysis"}, amb.Names)

	assert.Equal(t, []byte("# sentinel\n"), readOutput(t, e, "/plugins/110_parameter_buster5.py"))
}

const anchorlessTemplate = `from fasthtml.common import *


class KungfuWorkflow:
    APP_NAME = 'kungfu'
    DISPLAY_NAME = 'Kung Fu Download'
    TRAINING_PROMPT = 'kungfu.md'
    ENDPOINT_MESSAGE = 'Stream data from the dojo.'
    QUERY_TEMPLATES = {'demo': 'SELECT 1'}
    ROLES = ['Workshop']

    def __init__(self, app, pipulate, pipeline, db, app_name=APP_NAME):
        self.app_name = app_name

    async def landing(self, request):
        return 'the canonical landing page'
`

func TestRun_NoAnchorAppendsRoutesWithWarning(t *testing.T) {
	fixtures := defaultFixtures()
	fixtures[templatePath] = anchorlessTemplate
	e := newEngine(t, fixtures)

	res, err := e.Run(context.Background(), templatePath, sourcePath, output.SuffixedMode("5"))
	require.NoError(t, err)

	kinds := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		kinds = append(kinds, w.Kind)
	}
	assert.Contains(t, kinds, WarnUnresolvedRouteInsertionPoint)
	// UI_CONSTANTS has no placeholder in this template.
	assert.Contains(t, kinds, WarnMissingOverridePlaceholder)

	out := readOutput(t, e, res.Path)
	mod, err := pysrc.Parse(context.Background(), res.Path, out)
	require.NoError(t, err)

	require.Len(t, mod.InitStatements, 2)
	assert.Equal(t, "step_parameters_process", mod.InitStatements[1].EndpointName)
}

const initlessTemplate = `from fasthtml.common import *


class KungfuWorkflow:
    APP_NAME = 'kungfu'
    DISPLAY_NAME = 'Kung Fu Download'
    TRAINING_PROMPT = 'kungfu.md'
    ENDPOINT_MESSAGE = 'Stream data from the dojo.'
    QUERY_TEMPLATES = {'demo': 'SELECT 1'}
    ROLES = ['Workshop']
    UI_CONSTANTS = {'spacing': '1rem'}

    async def landing(self, request):
        return 'the canonical landing page'
`

func TestRun_NoInitDropsRoutesNamingThem(t *testing.T) {
	fixtures := defaultFixtures()
	fixtures[templatePath] = initlessTemplate
	e := newEngine(t, fixtures)

	res, err := e.Run(context.Background(), templatePath, sourcePath, output.SuffixedMode("5"))
	require.NoError(t, err)

	var dropped *Warning
	for i := range res.Warnings {
		if res.Warnings[i].Kind == WarnUnresolvedRouteInsertionPoint {
			dropped = &res.Warnings[i]
		}
	}
	require.NotNil(t, dropped)
	assert.Contains(t, dropped.Message, "step_parameters_process")

	out := readOutput(t, e, res.Path)
	mod, perr := pysrc.Parse(context.Background(), res.Path, out)
	require.NoError(t, perr)
	assert.Empty(t, mod.InitStatements)
	assert.NotContains(t, string(out), "app.route(")
}

const multiRouteSource = `import asyncio

from fasthtml.common import *


class ParameterBuster:
    """Strips tracking parameters from crawl URLs."""

    APP_NAME = 'parameterbuster'
    DISPLAY_NAME = 'Parameter Buster'
    QUERY_TEMPLATES = {'gsc': 'SELECT url FROM gsc'}
    ROLES = ['Botify']

    def __init__(self, app, pipulate, pipeline, db, app_name=APP_NAME):
        self.app_name = app_name
        app.route(f'/{app_name}/init', methods=['POST'])(self.init)
        app.route(f'/{app_name}/unfinalize', methods=['POST'])(self.unfinalize)
        app.route(
            '/parameterbuster/step_parameters_download',
            methods=['POST'],
        )(self.step_parameters_download)

    async def init(self, request):
        return 'init'

    async def unfinalize(self, request):
        return 'unfinalize'

    async def step_parameters_download(self, request):
        return 'download'
`

const richTemplate = `import asyncio


class KungfuWorkflow:
    """Canonical workflow scaffold."""

    APP_NAME = 'kungfu'
    DISPLAY_NAME = 'Kung Fu Download'
    TRAINING_PROMPT = """Multi
line prompt."""
    ENDPOINT_MESSAGE = 'Stream data from the dojo.'
    QUERY_TEMPLATES = {'demo': 'SELECT 1'}
    ROLES = ['Workshop']
    UI_CONSTANTS = {'spacing': '1rem'}

    def __init__(self, app, pipulate, pipeline, db, app_name=APP_NAME):
        self.app_name = app_name
        app.route(f'/{app_name}/init', methods=['POST'])(self.init)
        app.route(f'/{app_name}/unfinalize', methods=['POST'])(self.unfinalize)

    @property
    def endpoint(self):
        return f'/{self.APP_NAME}'

    async def init(self, request):
        return 'init'

    async def unfinalize(self, request):
        return 'unfinalize'
`

const decoratedSource = `import asyncio


class ParameterBuster:
    APP_NAME = 'parameterbuster'
    DISPLAY_NAME = 'Parameter Buster'
    QUERY_TEMPLATES = {'gsc': 'SELECT url FROM gsc'}
    ROLES = ['Botify']

    def __init__(self, app, pipulate, pipeline, db, app_name=APP_NAME):
        self.app_name = app_name

    @staticmethod
    def step_notes():
        return 'notes'

    async def step_parameters(self, request):
        banner = f'workflow {ParameterBuster.APP_NAME} ready'
        return banner

    def step_summary(self, request):
        return 'summary'
`

// The reparse gate compares the assembled structure against the reparsed
// output and must stay silent for well-formed inputs. Sweep structurally
// diverse templates and sources through the engine to pin that down.
func TestRun_ReparseMatchesAcrossFixtures(t *testing.T) {
	tests := []struct {
		name     string
		template string
		source   string
	}{
		{"baseline", templateModule, sourceModule},
		{"multi-line route registration", templateModule, multiRouteSource},
		{"decorated and sync members", richTemplate, decoratedSource},
		{"template without route anchor", anchorlessTemplate, sourceModule},
		{"template without constructor", initlessTemplate, sourceModule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, map[string]string{templatePath: tt.template, sourcePath: tt.source})

			res, err := e.Run(context.Background(), templatePath, sourcePath, output.SuffixedMode("5"))
			require.NoError(t, err)

			out := readOutput(t, e, res.Path)
			mod, perr := pysrc.Parse(context.Background(), res.Path, out)
			require.NoError(t, perr)
			assert.Equal(t, "ParameterBuster5", mod.ClassName)
		})
	}
}

func TestRun_MissingRequiredAttribute(t *testing.T) {
	fixtures := defaultFixtures()
	fixtures[templatePath] = strings.Replace(templateModule,
		"    ROLES = ['Workshop']\n", "", 1)
	e := newEngine(t, fixtures)

	_, err := e.Run(context.Background(), templatePath, sourcePath, output.SuffixedMode("5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROLES")

	_, statErr := e.fs.Stat("/plugins/110_parameter_buster5.py")
	assert.Error(t, statErr)
}

func TestRun_InPlace(t *testing.T) {
	e := newEngine(t, defaultFixtures())

	res, err := e.Run(context.Background(), templatePath, sourcePath, output.InPlaceMode())
	require.NoError(t, err)
	assert.Equal(t, sourcePath, res.Path)

	out := readOutput(t, e, res.Path)
	mod, err := pysrc.Parse(context.Background(), res.Path, out)
	require.NoError(t, err)

	assert.Equal(t, "ParameterBuster", mod.ClassName)
	assert.Equal(t, "parameterbuster", mod.AppName)
	assert.Contains(t, string(out), "'/parameterbuster/step_parameters_process'")
	assert.Contains(t, string(out), "'the canonical landing page'")
}

func TestRun_NamedVariant(t *testing.T) {
	e := newEngine(t, defaultFixtures())

	mode := output.NamedVariantMode("230_url_scrubber", "UrlScrubber", "urlscrubber")
	res, err := e.Run(context.Background(), templatePath, sourcePath, mode)
	require.NoError(t, err)

	assert.Equal(t, "/plugins/230_url_scrubber.py", res.Path)

	out := readOutput(t, e, res.Path)
	mod, err := pysrc.Parse(context.Background(), res.Path, out)
	require.NoError(t, err)

	assert.Equal(t, "UrlScrubber", mod.ClassName)
	assert.Equal(t, "urlscrubber", mod.AppName)
	assert.Contains(t, string(out), "'/urlscrubber/step_parameters_process'")
}

func TestRun_MissingInputs(t *testing.T) {
	e := newEngine(t, map[string]string{sourcePath: sourceModule})

	_, err := e.Run(context.Background(), templatePath, sourcePath, output.SuffixedMode("5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read template")
}

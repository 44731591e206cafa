package descriptor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Minimal(t *testing.T) {
	path := writeFile(t, "name: demo\nplatform: AWS\nruntime: docker\n")

	d, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "demo", d.Name)
	assert.Equal(t, "aws", d.Platform)
	assert.Equal(t, "docker", d.Runtime)
	assert.Equal(t, DefaultRegion, d.Region)
	assert.Equal(t, Resources{CPU: 1, Memory: 1024, MinInstances: 1, MaxInstances: 1}, d.Resources)
	assert.Equal(t, Networking{Port: 8080, Public: true}, d.Networking)
	require.NotNil(t, d.Build, "docker runtime gets a default build")
	assert.Equal(t, "Dockerfile", d.Build.Dockerfile)
	assert.Equal(t, ".", d.Build.Context)
}

func TestLoad_Full(t *testing.T) {
	path := writeFile(t, `app_name: shop
provider: gcp
region: europe-west1
runtime: serverless
build:
  dockerfile: docker/Dockerfile.prod
  args:
    GO_VERSION: "1.25"
resources:
  cpu: 0.5
  memory: 512
  min_instances: 2
  max_instances: 4
networking:
  port: 3000
  public: false
  custom_domain: shop.example.com
env:
  ZETA: last
  ALPHA: first
  DEBUG: "true"
`)

	d, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "shop", d.Name)
	assert.Equal(t, "gcp", d.Platform)
	assert.Equal(t, 0.5, d.Resources.CPU)
	assert.Equal(t, 4, d.Resources.MaxInstances)
	assert.Equal(t, Networking{Port: 3000, Public: false, CustomDomain: "shop.example.com"}, d.Networking)
	assert.Equal(t, EnvVars{{"ZETA", "last"}, {"ALPHA", "first"}, {"DEBUG", "true"}}, d.Env)
	assert.Equal(t, ".", d.Build.Context)
	v, ok := d.Build.Args.Get("GO_VERSION")
	assert.True(t, ok)
	assert.Equal(t, "1.25", v)
}

func TestLoad_EnvListAndMappingAgree(t *testing.T) {
	list := writeFile(t, "app_name: a\nprovider: aws\nruntime: static\nenv:\n  - A=1\n  - B=x=y\n")
	mapping := writeFile(t, "app_name: a\nprovider: aws\nruntime: static\nenv:\n  A: \"1\"\n  B: x=y\n")

	fromList, err := Load(list)
	require.NoError(t, err)
	fromMapping, err := Load(mapping)
	require.NoError(t, err)

	assert.Equal(t, fromMapping, fromList)
	assert.Equal(t, EnvVars{{"A", "1"}, {"B", "x=y"}}, fromList.Env)
}

func TestLoad_EmptyEnvList(t *testing.T) {
	path := writeFile(t, "app_name: a\nprovider: aws\nruntime: static\nenv: []\n")

	d, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, d.Env)
	assert.Nil(t, d.Build, "non-docker runtimes get no default build")
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, KindNotFound, cfgErr.Kind)
}

func TestLoad_Malformed(t *testing.T) {
	tests := map[string]string{
		"syntax":           "app_name: [unclosed\n",
		"wrong type":       "app_name: demo\nresources:\n  cpu: lots\n",
		"env entry no eq":  "app_name: demo\nenv:\n  - JUSTKEY\n",
		"top level list":   "- one\n- two\n",
		"env nested value": "app_name: demo\nenv:\n  A:\n    nested: true\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, content))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.NotErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("missing required fields", func(t *testing.T) {
		_, err := Load(writeFile(t, "region: us-east-1\n"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalid)

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.Problems, "app_name is required")
		assert.Contains(t, cfgErr.Problems, "provider is required")
		assert.Contains(t, cfgErr.Problems, "runtime is required")
	})

	t.Run("out of range values", func(t *testing.T) {
		_, err := Load(writeFile(t, `app_name: demo
provider: digitalocean
runtime: docker
resources:
  cpu: 0
  memory: -1
networking:
  port: 70000
`))
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Len(t, cfgErr.Problems, 4)
		assert.Contains(t, err.Error(), "networking.port 70000 is outside 1-65535")
	})

	t.Run("name too long", func(t *testing.T) {
		long := make([]byte, MaxNameLength+1)
		for i := range long {
			long[i] = 'a'
		}
		_, err := Load(writeFile(t, "app_name: "+string(long)+"\nprovider: aws\nruntime: static\n"))
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("duplicate env keys", func(t *testing.T) {
		_, err := Load(writeFile(t, "app_name: demo\nprovider: aws\nruntime: static\nenv:\n  - A=1\n  - A=2\n"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), `duplicate key "A"`)
	})

	t.Run("max below min", func(t *testing.T) {
		_, err := Load(writeFile(t, "app_name: demo\nprovider: aws\nruntime: static\nresources:\n  min_instances: 3\n  max_instances: 2\n"))
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

func TestLoad_DoesNotModifyFile(t *testing.T) {
	content := "name: demo\nplatform: aws\nruntime: docker\n"
	path := writeFile(t, content)

	_, err := Load(path)
	require.NoError(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(after))
}

func TestSave_RoundTrip(t *testing.T) {
	path := writeFile(t, `name: demo
platform: azure
runtime: docker
region: westeurope
env:
  - B=2
  - A=1
build:
  args:
    - VERSION=3
networking:
  custom_domain: demo.example.com
`)

	first, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, Save(path, first))
	second, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	firstBytes, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, Save(path, second))
	third, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, second, third)

	secondBytes, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(firstBytes), string(secondBytes), "save is deterministic")
	assert.Contains(t, string(secondBytes), "app_name: demo")
}

func TestSave_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	d := Default("demo")
	d.Networking.Port = 0

	err := Save(path, d)
	assert.ErrorIs(t, err, ErrInvalid)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDefault(t *testing.T) {
	d := Default("my-app")
	require.NoError(t, d.Validate())
	assert.Equal(t, "aws", d.Platform)
	assert.Equal(t, "docker", d.Runtime)
	assert.Equal(t, "my-app", d.ImageName())
}

func TestDeployRequest_JSON(t *testing.T) {
	d := Default("demo")
	d.Env = EnvVars{{"Z", "1"}, {"A", "2"}}

	body, err := json.Marshal(d.DeployRequest("demo:latest"))
	require.NoError(t, err)

	s := string(body)
	assert.Contains(t, s, `"name":"demo"`)
	assert.Contains(t, s, `"type":"docker"`)
	assert.Contains(t, s, `"platform":"aws"`)
	assert.Contains(t, s, `"env_vars":{"Z":"1","A":"2"}`)
	assert.Contains(t, s, `"image":"demo:latest"`)
	assert.Contains(t, s, `"resources":{"cpu":1,"memory":1024,"min_instances":1,"max_instances":1}`)
}

func TestDeployRequest_EmptyEnvIsObject(t *testing.T) {
	d := Default("demo")
	body, err := json.Marshal(d.DeployRequest(""))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"env_vars":{}`)
	assert.NotContains(t, string(body), `"image"`)
}

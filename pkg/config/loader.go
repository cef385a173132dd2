package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig 依次合并 base.yaml、<env>.yaml，然后用 secrets.env 和进程环境变量
// 展开 ${VAR} 与 ${VAR:-default} 占位符。<env>.yaml 与 secrets.env 可以不存在
func LoadConfig(env string, configDir string) (map[string]any, error) {
	if configDir == "" {
		configDir = "config"
	}

	merged, err := readYAML(filepath.Join(configDir, "base.yaml"))
	if err != nil {
		return nil, fmt.Errorf("load base.yaml: %w", err)
	}

	if env != "" && env != "base" {
		overlay, err := readYAML(filepath.Join(configDir, env+".yaml"))
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("load %s.yaml: %w", env, err)
		default:
			merged = mergeMaps(merged, overlay)
		}
	}

	vars, err := readEnvFile(filepath.Join(configDir, "secrets.env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load secrets.env: %w", err)
	}
	if vars == nil {
		vars = make(map[string]string)
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	return expandTree(merged, vars).(map[string]any), nil
}

// Decode 经 YAML 往返一次，让 time.Duration 等字段按 yaml tag 解码
func Decode(raw map[string]any, out any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("re-encode config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func readYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// readEnvFile 解析 KEY=VALUE 行，忽略空行和 # 注释，去掉一层引号
func readEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars[strings.TrimSpace(key)] = unquote(strings.TrimSpace(value))
	}
	return vars, sc.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// mergeMaps 返回新 map：嵌套 map 递归合并，其余值由 src 覆盖
func mergeMaps(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if base, ok := out[k].(map[string]any); ok {
				out[k] = mergeMaps(base, sub)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func expandTree(node any, vars map[string]string) any {
	switch v := node.(type) {
	case string:
		return expandString(v, vars)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = expandTree(child, vars)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = expandTree(child, vars)
		}
		return out
	default:
		return node
	}
}

// expandString 未定义且无默认值的占位符原样保留，便于启动校验时报出变量名
func expandString(s string, vars map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(ref string) string {
		name, def, hasDefault := strings.Cut(ref, ":-")
		if v, ok := vars[name]; ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		if v, ok := vars[name]; ok {
			return v
		}
		return "${" + ref + "}"
	})
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetConfigEnv 读取 CONFIG_ENV，默认 local
func GetConfigEnv() string {
	return GetEnv("CONFIG_ENV", "local")
}

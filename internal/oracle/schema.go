package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	apperrors "github.com/wfunc/gamemaster/internal/errors"
)

// 裁决结果的 JSON Schema
const verdictSchema = `{
	"type": "object",
	"required": ["passed", "reason"],
	"properties": {
		"passed": {"type": "boolean"},
		"reason": {"type": "string"}
	}
}`

// 生成关卡结果的 JSON Schema
const levelDraftSchema = `{
	"type": "object",
	"required": ["levelDescription", "difficulty"],
	"properties": {
		"levelDescription": {"type": "string", "minLength": 1},
		"difficulty": {"type": "number"}
	}
}`

// schemaCache 已编译的 schema，按名称缓存
var schemaCache sync.Map // map[string]*jsonschema.Schema

func compiledSchema(name, definition string) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(definition))
	if err != nil {
		return nil, fmt.Errorf("解析schema %s失败: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", name)
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("添加schema %s失败: %w", name, err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("编译schema %s失败: %w", name, err)
	}

	schemaCache.Store(name, compiled)
	return compiled, nil
}

// decodeStrict 校验原始输出并解码到 dest
func decodeStrict(name, definition string, raw []byte, dest interface{}) error {
	raw = stripCodeFence(raw)

	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrOracleMalformed, "无效的JSON")
	}

	schema, err := compiledSchema(name, definition)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrOracleMalformed)
	}

	if err := schema.Validate(parsed); err != nil {
		return apperrors.Wrap(err, apperrors.ErrOracleMalformed, "schema校验失败")
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return apperrors.Wrap(err, apperrors.ErrOracleMalformed, "解码失败")
	}
	return nil
}

// stripCodeFence 去掉模型偶尔包裹的 markdown 代码块
func stripCodeFence(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(trimmed, []byte("```")) {
		return trimmed
	}

	trimmed = bytes.TrimPrefix(trimmed, []byte("```"))
	if i := bytes.IndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	trimmed = bytes.TrimSuffix(bytes.TrimSpace(trimmed), []byte("```"))
	return bytes.TrimSpace(trimmed)
}

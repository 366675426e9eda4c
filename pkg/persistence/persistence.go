package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/betbot/perpmaker/pkg/logger"
)

// Service 按 (prefix, id, tag) 三元组开辟一个独立的键值槽。
type Service interface {
	NewStore(prefix, id, tag string) Store
}

type Store interface {
	Save(data interface{}) error
	Load(data interface{}) error
}

// ErrNotExists 槽位为空。首次启动没有历史状态属于正常情况，调用方按非致命处理。
var ErrNotExists = errors.New("persistence: state not exists")

// JSONFileService 每个槽位一个 JSON 文件，落在 baseDir 下。
type JSONFileService struct {
	baseDir string
}

func NewJSONFileService(baseDir string) *JSONFileService {
	return &JSONFileService{baseDir: baseDir}
}

func (s *JSONFileService) NewStore(prefix, id, tag string) Store {
	return &jsonFileStore{
		baseDir: s.baseDir,
		key:     fmt.Sprintf("%s:%s:%s", prefix, id, tag),
	}
}

type jsonFileStore struct {
	baseDir string
	key     string
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func (s *jsonFileStore) path() string {
	return filepath.Join(s.baseDir, unsafeKeyChars.ReplaceAllString(s.key, "_")+".json")
}

// Save 先写临时文件再改名，避免中途崩溃留下半个状态文件。
func (s *jsonFileStore) Save(data interface{}) error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	target := s.path()
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

func (s *jsonFileStore) Load(data interface{}) error {
	b, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return err
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	return json.Unmarshal(b, data)
}

// SaveFields 把 obj 上带 `persistence:"<tag>"` 的字段各自存进 "state:<id>:<tag>" 槽位。
func SaveFields(obj interface{}, id string, service Service) error {
	return walkPersistedFields(obj, func(tag string, fv reflect.Value) error {
		logger.Debugf("📝 保存状态 id=%s tag=%s", id, tag)
		return service.NewStore(statePrefix, id, tag).Save(fv.Interface())
	})
}

// LoadFields SaveFields 的逆操作；缺失的槽位跳过，字段保持零值。
func LoadFields(obj interface{}, id string, service Service) error {
	return walkPersistedFields(obj, func(tag string, fv reflect.Value) error {
		holder := reflect.New(derefType(fv.Type())).Interface()
		if err := service.NewStore(statePrefix, id, tag).Load(&holder); err != nil {
			if errors.Is(err, ErrNotExists) {
				return nil
			}
			return err
		}

		loaded := reflect.ValueOf(holder)
		if fv.Kind() != reflect.Ptr && loaded.Kind() == reflect.Ptr {
			loaded = loaded.Elem()
		}
		fv.Set(loaded)
		return nil
	})
}

const statePrefix = "state"

// walkPersistedFields 深度优先遍历可设置字段，对每个带 persistence tag 的
// 字段调用 fn；无 tag 的嵌套结构体继续下钻（嵌入的配置结构体也能携带状态）。
func walkPersistedFields(obj interface{}, fn func(tag string, fv reflect.Value) error) error {
	v := reflect.ValueOf(obj)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("persistence: %T is not a struct", obj)
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}

		tag := t.Field(i).Tag.Get("persistence")
		if tag == "" || tag == "-" {
			if fv.Kind() == reflect.Struct {
				if err := walkPersistedFields(fv.Addr().Interface(), fn); err != nil {
					return err
				}
			}
			continue
		}

		// 允许 "tag,option" 形式，只取名字部分
		if err := fn(strings.SplitN(tag, ",", 2)[0], fv); err != nil {
			return err
		}
	}
	return nil
}

func derefType(typ reflect.Type) reflect.Type {
	if typ.Kind() == reflect.Ptr {
		return typ.Elem()
	}
	return typ
}

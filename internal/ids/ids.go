package ids

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// childNamespace - пространство имен для детерминированных id дочерних сделок
var childNamespace = uuid.MustParse("6f1c1f8e-3a4e-5b7d-9c2a-1d0e8b7a6c55")

var masterNamespace = uuid.MustParse("2b8e4d71-0c5a-5f39-8e16-7a4d9b3c2e80")

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewMasterTradeID возвращает ULID, сортируемый по времени создания.
// Ошибка возможна только при сбое источника энтропии.
func NewMasterTradeID() (string, error) {
	mu.Lock()
	defer mu.Unlock()

	return newMasterTradeID(time.Now().UTC(), mono)
}

func newMasterTradeID(at time.Time, entropy io.Reader) (string, error) {
	id, err := ulid.New(ulid.Timestamp(at), entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate master trade id: %w", err)
	}

	return id.String(), nil
}

// MasterTradeIDForKey возвращает детерминированный id мастер-сделки для ключа идемпотентности
func MasterTradeIDForKey(key string) string {
	return uuid.NewSHA1(masterNamespace, []byte(key)).String()
}

// ChildTradeID возвращает детерминированный id дочерней сделки для пары (master, user).
// Повторная рассылка той же мастер-сделки дает тот же id.
func ChildTradeID(masterID, userID string) string {
	return uuid.NewSHA1(childNamespace, []byte(masterID+"/"+userID)).String()
}

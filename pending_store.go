package mxauth

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pendingRecordVersionV1 = 1

	pendingFlagRegistrationStarted = 1 << 0
	pendingFlagHasThreePID         = 1 << 1
)

type pendingAttemptStore struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

func newPendingAttemptStore(redisClient *redis.Client, cfg PendingConfig) *pendingAttemptStore {
	return &pendingAttemptStore{
		redis:  redisClient,
		prefix: cfg.RedisPrefix,
		ttl:    cfg.TTL,
	}
}

func (s *pendingAttemptStore) key(attemptID string) string {
	return s.prefix + ":" + attemptID
}

// Save persists the pending attempt under its attempt id, replacing any
// previous record. The TTL is refreshed on every save.
func (s *pendingAttemptStore) Save(ctx context.Context, data *pendingAuthData) error {
	encoded, err := encodePendingRecord(data)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(data.attemptID), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingStoreUnavailable, err)
	}

	return nil
}

// Load retrieves a previously persisted attempt. A missing or expired record
// yields ErrNoPersistedAttempt.
func (s *pendingAttemptStore) Load(ctx context.Context, attemptID string) (*pendingAuthData, error) {
	raw, err := s.redis.Get(ctx, s.key(attemptID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoPersistedAttempt
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingStoreUnavailable, err)
	}

	data, err := decodePendingRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodingFailure, err)
	}
	data.attemptID = attemptID

	return data, nil
}

// Delete removes the persisted attempt. Deleting a missing record is not an
// error.
func (s *pendingAttemptStore) Delete(ctx context.Context, attemptID string) error {
	if err := s.redis.Del(ctx, s.key(attemptID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingStoreUnavailable, err)
	}
	return nil
}

func encodePendingRecord(data *pendingAuthData) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(pendingRecordVersionV1)

	var flags byte
	if data.isRegistrationStarted {
		flags |= pendingFlagRegistrationStarted
	}
	if data.currentThreePID != nil {
		flags |= pendingFlagHasThreePID
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, uint32(data.sendAttempt)); err != nil {
		return nil, err
	}

	if err := writePendingString(&buf, data.homeserver); err != nil {
		return nil, err
	}
	if err := writePendingString(&buf, data.clientSecret); err != nil {
		return nil, err
	}
	if err := writePendingString(&buf, data.currentSession); err != nil {
		return nil, err
	}

	if data.currentThreePID != nil {
		tp := data.currentThreePID

		buf.WriteByte(byte(tp.ThreePID.Kind))
		if err := writePendingString(&buf, tp.ThreePID.Address); err != nil {
			return nil, err
		}
		if err := writePendingString(&buf, tp.ThreePID.CountryCode); err != nil {
			return nil, err
		}
		if err := writePendingString(&buf, tp.Response.SessionID); err != nil {
			return nil, err
		}
		if err := writePendingString(&buf, tp.Response.SubmitURL); err != nil {
			return nil, err
		}
		if err := writePendingString(&buf, tp.Response.FormattedPhone); err != nil {
			return nil, err
		}

		params, err := json.Marshal(tp.Params)
		if err != nil {
			return nil, err
		}
		if err := writePendingBytes(&buf, params); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodePendingRecord(raw []byte) (*pendingAuthData, error) {
	reader := bytes.NewReader(raw)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != pendingRecordVersionV1 {
		return nil, errors.New("invalid pending record version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	var sendAttempt uint32
	if err := binary.Read(reader, binary.BigEndian, &sendAttempt); err != nil {
		return nil, err
	}

	data := &pendingAuthData{
		sendAttempt:           uint(sendAttempt),
		isRegistrationStarted: flags&pendingFlagRegistrationStarted != 0,
	}

	if data.homeserver, err = readPendingString(reader); err != nil {
		return nil, err
	}
	if data.clientSecret, err = readPendingString(reader); err != nil {
		return nil, err
	}
	if data.currentSession, err = readPendingString(reader); err != nil {
		return nil, err
	}

	if flags&pendingFlagHasThreePID != 0 {
		kind, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}

		tp := &ThreePIDData{}
		tp.ThreePID.Kind = ThreePIDKind(kind)

		if tp.ThreePID.Address, err = readPendingString(reader); err != nil {
			return nil, err
		}
		if tp.ThreePID.CountryCode, err = readPendingString(reader); err != nil {
			return nil, err
		}
		if tp.Response.SessionID, err = readPendingString(reader); err != nil {
			return nil, err
		}
		if tp.Response.SubmitURL, err = readPendingString(reader); err != nil {
			return nil, err
		}
		if tp.Response.FormattedPhone, err = readPendingString(reader); err != nil {
			return nil, err
		}

		params, err := readPendingBytes(reader)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(params, &tp.Params); err != nil {
			return nil, err
		}

		data.currentThreePID = tp
	}

	return data, nil
}

func writePendingString(buf *bytes.Buffer, s string) error {
	return writePendingBytes(buf, []byte(s))
}

func writePendingBytes(buf *bytes.Buffer, b []byte) error {
	if len(b) > 65535 {
		return errors.New("pending record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(b))); err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func readPendingString(reader *bytes.Reader) (string, error) {
	b, err := readPendingBytes(reader)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readPendingBytes(reader *bytes.Reader) ([]byte, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return nil, err
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

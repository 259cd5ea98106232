package crypto

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// logFor returns an entry tagged with the crypto package and the operation.
func logFor(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function": function,
		"package":  "crypto",
	})
}

// failure tags err with its class and the operation that produced it.
func failure(entry *logrus.Entry, err error, errorType, operation string) *logrus.Entry {
	return entry.WithError(err).WithFields(logrus.Fields{
		"error_type": errorType,
		"operation":  operation,
	})
}

// SecureFieldHash creates a short preview of opaque data (ciphertext, public
// material) for logging. Never pass secret key bytes.
func SecureFieldHash(data []byte, name string) logrus.Fields {
	preview := "nil"
	if len(data) > 0 {
		n := min(len(data), 8)
		preview = fmt.Sprintf("%x", data[:n])
		if len(data) > n {
			preview += "..."
		}
	}

	return logrus.Fields{
		name + "_preview": preview,
		name + "_size":    len(data),
	}
}

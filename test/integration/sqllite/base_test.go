package sqllite

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
)

var portBase int32 = 9018 // starting port number (can be anything safe)

func nextPort() int {
	return int(atomic.AddInt32(&portBase, 1))
}

func runTestWithSetup(t *testing.T, testFunc func(t *testing.T, port int)) {
	port := nextPort()
	filename := fmt.Sprintf("driftflow-test-%d.db", port)
	defer os.Remove(filename)
	os.Setenv("HTTP_ADDR", ":"+strconv.Itoa(port))
	os.Setenv("DFLOW_ENGINE_CHECK_DB_INTERVAL", "1s")
	os.Setenv("DFLOW_SECRET_KEY", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	SetupSqlLiteTestInstance(t.Context(), filename)
	testFunc(t, port)
}

func SetupSqlLiteTestInstance(ctx context.Context, filename string) {
	os.Setenv("DFLOW_DATABASE_TYPE", "SQLLITE")
	os.Setenv("DFLOW_DATABASE_SQLLITE_FILE_NAME", filename)
}

package tester

import (
	"os"
	"path/filepath"

	"github.com/emrgen/vault/internal/cache"
	"github.com/emrgen/vault/internal/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testPath = "../../.test/db/"
)

var (
	db *gorm.DB
)

// dbFile is unique per test binary so packages can run in parallel against
// the same directory.
func dbFile() string {
	return testPath + filepath.Base(os.Args[0]) + ".db"
}

func Setup() {
	RemoveDBFile()

	_ = os.Setenv("ENV", "test")

	err := os.MkdirAll(testPath, os.ModePerm)
	if err != nil {
		panic(err)
	}

	db, err = gorm.Open(sqlite.Open(dbFile()), &gorm.Config{})
	if err != nil {
		panic(err)
	}

	err = model.Migrate(db)
	if err != nil {
		panic(err)
	}
}

func TestDB() *gorm.DB {
	return db
}

func RemoveDBFile() {
	err := os.RemoveAll(dbFile())
	if err != nil {
		panic(err)
	}
}

func KV() cache.KV {
	return cache.NewMemory()
}

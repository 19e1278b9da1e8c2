package generator

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"

	"github.com/jaswdr/faker"
)

// SampleHeader is the header row written by WriteSampleCSV
var SampleHeader = []string{"id", "first_name", "last_name", "email", "city", "balance", "note"}

// SampleGenerator produces fake customer records
type SampleGenerator struct {
	Faker faker.Faker
}

// NewSampleGenerator creates a generator; the same seed yields the same rows
func NewSampleGenerator(seed int64) *SampleGenerator {
	return &SampleGenerator{
		Faker: faker.NewWithSeed(rand.NewSource(seed)),
	}
}

// Record generates the fields of row id
func (sg *SampleGenerator) Record(id int) []string {
	person := sg.Faker.Person()
	balance := sg.Faker.Float64(2, -1000, 100000)

	// About one note in four is left empty
	note := ""
	if sg.Faker.IntBetween(1, 4) > 1 {
		note = sg.Faker.Lorem().Sentence(5)
	}

	return []string{
		strconv.Itoa(id),
		person.FirstName(),
		person.LastName(),
		sg.Faker.Internet().Email(),
		sg.Faker.Address().City(),
		strconv.FormatFloat(balance, 'f', 2, 64),
		note,
	}
}

// WriteSampleCSV writes a header and rows generated records to w
func WriteSampleCSV(w io.Writer, rows int, seed int64) error {
	if rows < 0 {
		return fmt.Errorf("row count must not be negative, got %d", rows)
	}

	sg := NewSampleGenerator(seed)
	writer := csv.NewWriter(w)
	if err := writer.Write(SampleHeader); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	for i := 1; i <= rows; i++ {
		if err := writer.Write(sg.Record(i)); err != nil {
			return fmt.Errorf("error writing row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteSampleFile writes a sample CSV to path. The file is closed before returning
// and a failed close is reported like a failed write.
func WriteSampleFile(path string, rows int, seed int64) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}

	if err := WriteSampleCSV(file, rows, seed); err != nil {
		file.Close()
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("error closing %s: %w", path, err)
	}
	return nil
}

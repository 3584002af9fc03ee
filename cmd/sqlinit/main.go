// The sqlinit executable creates a database on a CockroachDB cluster with
// this service's schema. It will not modify any existing tables (e.g. add
// missing indexes or change columns). This executable also schedules
// automatic backups per table, per dispatch/schema.Tables' sql_backup
// tags; if schedules already exist, they are dropped and recreated.
// https://www.cockroachlabs.com/docs/stable/create-schedule-for-backup
// https://www.cockroachlabs.com/docs/stable/drop-schedules
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os/exec"
	"reflect"
	"strings"
	"text/template"
	"time"

	"go.fieldcore.build/dispatch/schema"
	"go.fieldcore.build/go/sklog"
)

func execSQL(dbURL, sqlCmd string) {
	out, err := exec.Command(
		"cockroach", "sql",
		"--insecure", "--url="+dbURL,
		"--execute="+sqlCmd,
	).CombinedOutput()
	if err != nil {
		sklog.Fatalf("%s: %s: %s: %v", dbURL, sqlCmd, string(out), err)
	}
	sklog.Infof("Out: %s", string(out))
}

func main() {
	backupBucket := flag.String("backup_bucket", "fieldcore-dispatch-database-backups", "The bucket backups should be written to.")
	dbURL := flag.String("db_cluster", "postgres://root@localhost:26257/fieldcore", "The URL of the cluster")
	dbName := flag.String("db_name", "fieldcore", "name of database to init")
	skipBackups := flag.Bool("skip_backups", false, "Skip scheduling automated backups (e.g. for a local dev cluster).")
	flag.Parse()

	if *dbName == "" {
		sklog.Fatalf("Must supply db_name")
	}
	if *dbURL == "" {
		sklog.Fatalf("Must supply db_cluster")
	}
	normalizedDB := strings.ToLower(*dbName)

	sklog.Infof("Creating database %s", normalizedDB)
	execSQL(*dbURL, "CREATE DATABASE IF NOT EXISTS "+normalizedDB+";")

	sklog.Infof("Creating tables")
	execSQL(*dbURL, schema.Schema)

	if *skipBackups {
		sklog.Info("Done (backups skipped)")
		return
	}
	if *backupBucket == "" {
		sklog.Fatalf("Must supply backup_bucket unless -skip_backups is set")
	}

	sklog.Infof("Deleting existing schedules, if any")
	execSQL(*dbURL, dropExistingSchedules(normalizedDB))

	// Make sure the drop commands really finish before creating new things.
	time.Sleep(2 * time.Second)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	sklog.Infof("Creating automatic backup schedules")
	execSQL(*dbURL, getSchedules(schema.Tables{}, *backupBucket, normalizedDB, rng))

	sklog.Info("Done")
}

func dropExistingSchedules(db string) string {
	// Underscore is escaped since it is a single-character wildcard in LIKE;
	// we don't want fieldcore_ to match fieldcoreinfra_weekly.
	return `DROP SCHEDULES SELECT id FROM [SHOW SCHEDULES] WHERE label LIKE '` + db + `\_%';`
}

type backupCadence struct {
	cadence string
	tables  []string
}

type jitterSource interface {
	Intn(n int) int
}

// getSchedules returns SQL commands to create backups according to the
// sql_backup tags on inputType's fields, scoped to dbName. Like cadences
// are grouped into one backup operation. Panics if a field is not a slice
// or is missing the sql_backup tag - every table must explicitly opt in
// to a cadence or opt out with "none".
func getSchedules(inputType interface{}, gcsBucket, dbName string, rng jitterSource) string {
	var schedules []*backupCadence

	t := reflect.TypeOf(inputType)
	for i := 0; i < t.NumField(); i++ {
		table := t.Field(i)
		if table.Type.Kind() != reflect.Slice {
			panic(`Expected table should be a slice: ` + table.Name)
		}
		cadence, ok := table.Tag.Lookup("sql_backup")
		if !ok {
			panic(`Expected table should have backup cadence. Did you mean "none"? ` + table.Name)
		}
		if cadence == "none" {
			continue
		}
		found := false
		for _, s := range schedules {
			if s.cadence == cadence {
				found = true
				s.tables = append(s.tables, dbName+"."+sqlTableName(table.Name))
				break
			}
		}
		if found {
			continue
		}
		schedules = append(schedules, &backupCadence{
			cadence: cadence,
			tables:  []string{dbName + "." + sqlTableName(table.Name)},
		})
	}
	body := strings.Builder{}
	templ := template.Must(template.New("").Parse(scheduleTemplate))
	for _, s := range schedules {
		err := templ.Execute(&body, scheduleContext{
			Cadence:           s.cadence,
			CadenceWithJitter: applyJitter(s.cadence, rng),
			DBName:            dbName,
			GCSBucket:         gcsBucket,
			Tables:            strings.Join(s.tables, ", "),
		})
		if err != nil {
			panic(err)
		}
	}
	return body.String()
}

// sqlTableName derives the snake_case SQL table name from a schema.Tables Go
// field name, which is already plural (e.g. "JobAssignmentLogs" -> "job_assignment_logs").
func sqlTableName(fieldName string) string {
	var b strings.Builder
	for i, r := range fieldName {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// applyJitter randomizes a given cadence slightly to avoid all backups
// happening at once. Returns a crontab string for the given cadence,
// panicking on an unknown one.
func applyJitter(cadence string, rng jitterSource) string {
	m := rng.Intn(60)
	h := rng.Intn(5) + 4
	switch cadence {
	case "daily":
		return fmt.Sprintf("%d %d * * *", m, h)
	case "weekly":
		return fmt.Sprintf("%d %d * * 0", m, h)
	case "monthly":
		return fmt.Sprintf("%d 4 %d * *", m, rng.Intn(28)+1)
	default:
		panic("Unknown cadence " + cadence)
	}
}

type scheduleContext struct {
	Cadence           string
	CadenceWithJitter string
	DBName            string
	GCSBucket         string
	Tables            string
}

const scheduleTemplate = `CREATE SCHEDULE {{.DBName}}_{{.Cadence}}
FOR BACKUP TABLE {{.Tables}}
INTO 'gs://{{.GCSBucket}}/{{.DBName}}/{{.Cadence}}?AUTH=implicit'
  RECURRING '{{.CadenceWithJitter}}'
  FULL BACKUP ALWAYS WITH SCHEDULE OPTIONS ignore_existing_backups;
`

package datasource

import (
	"errors"
	"testing"
)

func TestValidateReadOnly(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr error
	}{
		{
			name:  "simple select",
			query: "SELECT * FROM Customers",
		},
		{
			name:  "lowercase select",
			query: "select Name, City from Customers where Country = 'Norway'",
		},
		{
			name:  "cte",
			query: "WITH totals AS (SELECT CustomerId, SUM(Amount) AS Total FROM Orders GROUP BY CustomerId) SELECT TOP 5 * FROM totals ORDER BY Total DESC",
		},
		{
			name:  "leading parenthesis",
			query: "(SELECT 1)",
		},
		{
			name:  "trailing semicolon",
			query: "SELECT 1;",
		},
		{
			name:  "trailing semicolon and comment",
			query: "SELECT 1; -- that is all",
		},
		{
			name:  "keyword inside string literal",
			query: "SELECT 'DROP TABLE Customers' AS Threat",
		},
		{
			name:  "escaped quote inside string literal",
			query: "SELECT 'it''s fine; DELETE nothing' FROM Customers",
		},
		{
			name:  "keyword as bracketed identifier",
			query: "SELECT [Update], [Delete] FROM [Insert]",
		},
		{
			name:  "keyword as quoted identifier",
			query: `SELECT "Update" FROM Customers`,
		},
		{
			name:  "keyword inside line comment",
			query: "SELECT 1 -- drop table Customers",
		},
		{
			name:  "keyword inside block comment",
			query: "SELECT /* insert goes here */ 1",
		},
		{
			name:  "nested block comment",
			query: "SELECT /* outer /* truncate */ still comment */ 1",
		},
		{
			name:  "joins and aggregates",
			query: "SELECT c.Name, COUNT(*) AS Orders FROM Customers c JOIN Orders o ON o.CustomerId = c.Id GROUP BY c.Name HAVING COUNT(*) > 3",
		},
		{
			name:    "empty",
			query:   "",
			wantErr: ErrEmptyQuery,
		},
		{
			name:    "whitespace only",
			query:   "   \n\t  ",
			wantErr: ErrEmptyQuery,
		},
		{
			name:    "comment only",
			query:   "-- nothing here",
			wantErr: ErrEmptyQuery,
		},
		{
			name:    "insert",
			query:   "INSERT INTO Customers (Name) VALUES ('x')",
			wantErr: ErrNotSelect,
		},
		{
			name:    "update",
			query:   "UPDATE Customers SET Name = 'x'",
			wantErr: ErrNotSelect,
		},
		{
			name:    "delete",
			query:   "DELETE FROM Customers",
			wantErr: ErrNotSelect,
		},
		{
			name:    "select into",
			query:   "SELECT * INTO #tmp FROM Customers",
			wantErr: ErrForbiddenKeyword,
		},
		{
			name:    "cte hiding an insert",
			query:   "WITH x AS (SELECT 1 AS n) INSERT INTO Customers SELECT n FROM x",
			wantErr: ErrForbiddenKeyword,
		},
		{
			name:    "openrowset",
			query:   "SELECT * FROM OPENROWSET('SQLNCLI', 'Server=.;', 'SELECT 1')",
			wantErr: ErrForbiddenKeyword,
		},
		{
			name:    "stored procedure call",
			query:   "SELECT * FROM sp_who",
			wantErr: ErrForbiddenKeyword,
		},
		{
			name:    "extended procedure call",
			query:   "SELECT dbo.xp_cmdshell('dir')",
			wantErr: ErrForbiddenKeyword,
		},
		{
			name:    "two statements",
			query:   "SELECT 1; SELECT 2",
			wantErr: ErrMultipleStatements,
		},
		{
			name:    "batched drop",
			query:   "SELECT 1; DROP TABLE Customers",
			wantErr: ErrMultipleStatements,
		},
		{
			name:    "batched string after semicolon",
			query:   "SELECT 1; 'x'",
			wantErr: ErrMultipleStatements,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReadOnly(tt.query)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateReadOnly(%q) = %v, want nil", tt.query, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateReadOnly(%q) = %v, want %v", tt.query, err, tt.wantErr)
			}
		})
	}
}

func TestValidateReadOnlyUnterminatedString(t *testing.T) {
	// An unterminated literal swallows the rest of the statement; whatever
	// hides in it is still a literal on the server side.
	if err := ValidateReadOnly("SELECT 'unterminated DROP TABLE x"); err != nil {
		t.Errorf("ValidateReadOnly() = %v, want nil", err)
	}
}

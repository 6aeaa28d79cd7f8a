package utils

import "database/sql"

// ToSQLStr creates new sql str instance
func ToSQLStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// FromSQLStr returns string from sql.NullString
func FromSQLStr(sqlStr sql.NullString) string {
	if sqlStr.Valid {
		return sqlStr.String
	}
	return ""
}

// ToSQLInt32 creates new sql int instance
func ToSQLInt32(i int32) sql.NullInt32 {
	return sql.NullInt32{Int32: i, Valid: true}
}

// FromSQLInt32OrZero returns int from sql.NullInt32
func FromSQLInt32OrZero(sqlData sql.NullInt32) int32 {
	if sqlData.Valid {
		return sqlData.Int32
	}
	return 0
}

// ToSQLFloat64 creates new sql float instance
func ToSQLFloat64(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: true}
}

// FromSQLFloat64OrZero returns float from sql.NullFloat64
func FromSQLFloat64OrZero(sqlData sql.NullFloat64) float64 {
	if sqlData.Valid {
		return sqlData.Float64
	}
	return 0
}

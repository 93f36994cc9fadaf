package repo

func queries() {
	byID := "SELECT * FROM users WHERE id = 1"
	paid := `UPDATE orders SET status = 'paid' WHERE id = 100`

	byEmailDomain := "SELECT * FROM users WHERE email LIKE '%@gmail.com'"
	byYear := "SELECT id FROM users WHERE YEAR(created_at) = 2024"
	byFirstName := "SELECT id FROM users WHERE first_name = 'Ada'"
	greeting := "SELECTING items is fun"
	_, _, _, _, _, _ = byID, paid, byEmailDomain, byYear, byFirstName, greeting
}

package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create variants table
			CREATE TABLE variants (
				id VARCHAR(255) PRIMARY KEY,
				uri TEXT NOT NULL,
				app_id VARCHAR(255),
				variant_name VARCHAR(255) NOT NULL,
				revision INTEGER NOT NULL,
				record JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_variants_app_id ON variants(app_id);
		`,
		2: `
			-- Create environments table
			CREATE TABLE environments (
				name VARCHAR(255) PRIMARY KEY,
				app_id VARCHAR(255) NOT NULL,
				record JSONB NOT NULL
			);
		`,
	}
}

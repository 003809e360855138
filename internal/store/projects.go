package store

// Project is an indexed repository.
type Project struct {
	Name      string
	IndexedAt string
	RootPath  string
}

// UpsertProject creates or refreshes a project record.
func (s *Store) UpsertProject(name, rootPath string) error {
	_, err := s.q.Exec(`
		INSERT INTO projects (name, indexed_at, root_path) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET indexed_at=excluded.indexed_at, root_path=excluded.root_path`,
		name, Now(), rootPath)
	return err
}

// GetProject returns a project by name, or nil when unknown.
func (s *Store) GetProject(name string) (*Project, error) {
	rows, err := s.q.Query("SELECT name, indexed_at, root_path FROM projects WHERE name=?", name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var p Project
	if err := rows.Scan(&p.Name, &p.IndexedAt, &p.RootPath); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects returns all indexed projects.
func (s *Store) ListProjects() ([]*Project, error) {
	rows, err := s.q.Query("SELECT name, indexed_at, root_path FROM projects ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.Name, &p.IndexedAt, &p.RootPath); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

// DeleteProject deletes a project and, through the FK cascade, every node
// and edge it owns.
func (s *Store) DeleteProject(name string) error {
	_, err := s.q.Exec("DELETE FROM projects WHERE name=?", name)
	return err
}

// DeleteAllProjects wipes the entire database.
func (s *Store) DeleteAllProjects() error {
	_, err := s.q.Exec("DELETE FROM projects")
	return err
}
